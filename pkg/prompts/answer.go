package prompts

import (
	"fmt"
	"strings"
)

// maxSummaryBytes bounds the serialized result handed to the model.
const maxSummaryBytes = 6000

// AnswerContext is the computed result the phrasing prompt may use.
type AnswerContext struct {
	Question string
	Scope    string // e.g. "data date range: 2025-01-01 to 2025-01-31; metric: gst_amount"
	Summary  string // JSON of the analysis result
	Prefix   string // text the answer must start with, e.g. a policy reframe notice
	Related  []string
}

// maxRelated bounds how many retrieved rows are quoted.
const maxRelated = 5

// BuildAnswerPrompt creates the prompt asking the model to phrase an already
// computed result.
func BuildAnswerPrompt(c AnswerContext) string {
	var prompt strings.Builder

	summary := c.Summary
	if len(summary) > maxSummaryBytes {
		summary = summary[:maxSummaryBytes]
	}
	scope := c.Scope
	if scope == "" {
		scope = "none"
	}

	prompt.WriteString(fmt.Sprintf("Context: %s\n\n", scope))
	prompt.WriteString(fmt.Sprintf("Question: %s\n\n", c.Question))
	prompt.WriteString("Data summary:\n")
	prompt.WriteString(summary)
	prompt.WriteString("\n\n")
	if len(c.Related) > 0 {
		related := c.Related
		if len(related) > maxRelated {
			related = related[:maxRelated]
		}
		prompt.WriteString("Related rows (wording only, not for figures):\n")
		for _, r := range related {
			prompt.WriteString("- " + r + "\n")
		}
		prompt.WriteString("\n")
	}
	if c.Prefix != "" {
		prompt.WriteString(fmt.Sprintf("Begin the answer with: %s\n\n", c.Prefix))
	}
	prompt.WriteString("Answer:")

	return prompt.String()
}

// BuildAnswerSystemMessage returns the system message for answer phrasing.
func BuildAnswerSystemMessage() string {
	return `You are an assistant for a Chartered Accountant firm. Answer ONLY from the provided data summary and context.
State the context (date range, client, metric) first, then the main total with the exact numbers given, then key points from any breakdown, series or comparison.
Never compute new figures. Use number formatting like 1,234.56. No legal or tax advice. No markdown. 4-8 sentences.`
}
