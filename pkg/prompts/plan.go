package prompts

import (
	"fmt"
	"strings"
	"time"
)

// PlanContext is what the planning prompt is allowed to see: the normalized
// query and metadata of the active dataset. Row data never goes in.
type PlanContext struct {
	Query         string
	ReferenceDate time.Time
	Columns       []string
	Concepts      []string // concepts the resolver found in the query
	KnownTags     []string
}

// Intent labels the model may answer with.
var planIntents = []string{"summary", "breakdown", "trend", "compare", "schema", "summarize", "explain", "other"}

// BuildPlanPrompt creates the prompt asking the model to read a query into a
// structured plan.
func BuildPlanPrompt(c PlanContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Query Analysis\n\n")
	prompt.WriteString("Read the user's question about a spreadsheet dataset and extract a structured plan.\n\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(c.Query)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Dataset\n\n")
	if !c.ReferenceDate.IsZero() {
		prompt.WriteString(fmt.Sprintf("Reference date (use for \"today\", \"this month\", dates without a year): %s\n", c.ReferenceDate.Format("2006-01-02")))
	}
	if len(c.Columns) > 0 {
		prompt.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(c.Columns, ", ")))
	}
	if len(c.Concepts) > 0 {
		prompt.WriteString(fmt.Sprintf("Concepts mentioned: %s\n", strings.Join(c.Concepts, ", ")))
	}
	if len(c.KnownTags) > 0 {
		prompt.WriteString(fmt.Sprintf("Known client tags: %s\n", strings.Join(c.KnownTags, ", ")))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString(fmt.Sprintf("- `intent` is one of: %s\n", strings.Join(planIntents, ", ")))
	prompt.WriteString("- A month without a day (\"January 2025\") is the whole month: give the first and last day\n")
	prompt.WriteString("- A single day is one date\n")
	prompt.WriteString("- For `compare`, put each side in `compare` as a [from, to] pair\n")
	prompt.WriteString("- `date_filter_type` is \"upload_date\" only when the question is about when a file was uploaded, otherwise \"event_date\"\n")
	prompt.WriteString("- `client_tag` only when the question names a client; prefer the known tag spelling\n")
	prompt.WriteString("- `metric` is the amount being asked about (gst, net, total, discount, amount) or null\n")
	prompt.WriteString("- `risk_flag` is true only for requests to evade tax or hide income, never for legal tax planning\n")
	prompt.WriteString("- `confidence` is 0.0-1.0; use below 0.4 when the question cannot be understood\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "intent": "trend",
  "confidence": 0.9,
  "dates": ["2025-01-01", "2025-01-31"],
  "compare": [],
  "date_filter_type": "event_date",
  "client_tag": null,
  "metric": "gst",
  "risk_flag": false,
  "needs_chart": true,
  "chart_type": "line",
  "chart_scope": "GST trend January 2025"
}
`)
	prompt.WriteString("```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildPlanSystemMessage returns the system message for query analysis.
func BuildPlanSystemMessage() string {
	return `You are a query analyzer for an accounting spreadsheet assistant. You extract structure from questions; you never answer them.`
}
