// Package policy gates a planned query once, right after planning: it blocks
// requests for evasion guidance, asks for missing scope, reframes ambiguous
// tax questions toward lawful planning, or lets the query through.
package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/audit"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	sqlcheck "github.com/ekaya-inc/ekaya-insight/pkg/sql"
)

// Action is the guard's single decision for a query.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionBlock   Action = "block"
	ActionClarify Action = "clarify"
	ActionReframe Action = "reframe"
)

// DefaultClarificationConfidence is the plan confidence below which the
// guard asks the user to confirm.
const DefaultClarificationConfidence = 0.4

// User-facing messages.
const (
	BlockMessage = "I can't assist with that. For tax and compliance, please consult your " +
		"Chartered Accountant or official guidelines."
	UnsafeInputMessage = "I can't run that request because part of it looks like a database command. " +
		"Please rephrase it using plain names and dates."
	ReframeMessage = "I'll interpret this as legal tax planning (deductions, compliance, and " +
		"proper reporting). Here's what the data shows:"
	ClarifyDateMessage = "Please specify the date or date range (e.g. 'GST on 12 Jan 2025' or " +
		"'expenses for January 2025')."
	ClarifyCompareMessage = "Please name the two dates or periods to compare (e.g. 'compare GST " +
		"10 Jan 2025 vs 11 Jan 2025')."
	ClarifyClientMessage = "Please specify which client (e.g. 'expenses for client ABC on 10 Jan')."
)

var blockPatterns = compile(
	`\bevade\b`,
	`\bevasion\b`,
	`\bhide\s+(?:my\s+)?income\b`,
	`\bundeclared\b`,
	`\bblack\s+money\b`,
	`\bunderreport`,
	`\bconceal\s+(?:income|tax)\b`,
	`\bhow\s+to\s+(?:evade|avoid)\s+tax\b`,
	`\bavoid\s+paying\s+tax\b`,
	`\bescape\s+tax\b`,
	`\bnot\s+pay(?:ing)?\s+tax\b`,
	`\bskip\s+tax\b`,
)

var reframePatterns = compile(
	`\breduce\s+(?:my\s+)?tax\b`,
	`\bpay\s+less\s+tax\b`,
	`\bgive\s+less\s+tax\b`,
	`\blower\s+(?:my\s+)?tax\b`,
	`\bminimi[sz](?:e|ing)\s+(?:my\s+)?tax\b`,
	`\bless\s+tax\b`,
)

var (
	clientWord    = regexp.MustCompile(`\bclient\b`)
	clientPointer = regexp.MustCompile(`\b(?:for|of|client)\s+\w+`)
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchesAny(q string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// Input is what the guard decides on.
type Input struct {
	Query     string // normalized query
	Plan      models.Plan
	Filters   map[string]string // resolver filters, screened like the tag
	Confirmed bool              // the user already confirmed this query once
}

// Decision is the guard's verdict. Plan is the plan to continue with; it
// differs from the input only when the action is reframe.
type Decision struct {
	Action  Action
	Message string
	Reason  string
	Plan    models.Plan
}

// Stops reports whether the pipeline must end here.
func (d Decision) Stops() bool {
	return d.Action == ActionBlock || d.Action == ActionClarify
}

// Guard evaluates the policy. It is stateless and safe for concurrent use.
type Guard struct {
	clarifyBelow float64
	auditor      *audit.PolicyAuditor
	logger       *zap.Logger
}

// NewGuard creates a Guard. A non-positive threshold uses the default.
func NewGuard(clarificationConfidence float64, auditor *audit.PolicyAuditor, logger *zap.Logger) *Guard {
	if clarificationConfidence <= 0 {
		clarificationConfidence = DefaultClarificationConfidence
	}
	if auditor == nil {
		auditor = audit.NewPolicyAuditor(logger)
	}
	return &Guard{
		clarifyBelow: clarificationConfidence,
		auditor:      auditor,
		logger:       logger.Named("policy"),
	}
}

// Evaluate runs Block, Clarify, Reframe and Allow in that order and returns
// the first that applies.
func (g *Guard) Evaluate(ctx context.Context, in Input) Decision {
	q := strings.ToLower(strings.TrimSpace(in.Query))
	plan := in.Plan.Clone()

	d := g.decide(ctx, q, in, plan)
	g.logger.Debug("Policy decision",
		zap.String("action", string(d.Action)),
		zap.String("reason", d.Reason))
	return d
}

func (g *Guard) decide(ctx context.Context, q string, in Input, plan models.Plan) Decision {
	if plan.RiskFlag || matchesAny(q, blockPatterns) {
		reason := "evasion pattern"
		if plan.RiskFlag {
			reason = "planner risk flag"
		}
		g.auditor.LogBlock(ctx, in.Query, reason)
		return Decision{Action: ActionBlock, Message: BlockMessage, Reason: reason, Plan: plan}
	}

	values := map[string]string{"tag": plan.Tag}
	for col, v := range in.Filters {
		values["filter."+col] = v
	}
	if flagged := sqlcheck.CheckValues(values); len(flagged) > 0 {
		g.auditor.LogUnsafeInput(ctx, in.Query, flagged[0].Field, flagged[0].Fingerprint)
		return Decision{Action: ActionBlock, Message: UnsafeInputMessage, Reason: "unsafe " + flagged[0].Field, Plan: plan}
	}

	if plan.Intent.RequiresDate() && !plan.HasDates() {
		return Decision{Action: ActionClarify, Message: ClarifyDateMessage, Reason: "missing date", Plan: plan}
	}
	if plan.Intent == models.IntentCompare && len(plan.CompareRanges) < 2 {
		return Decision{Action: ActionClarify, Message: ClarifyCompareMessage, Reason: "compare needs two scopes", Plan: plan}
	}
	if plan.Tag == "" && clientWord.MatchString(q) && clientPointer.MatchString(q) {
		return Decision{Action: ActionClarify, Message: ClarifyClientMessage, Reason: "missing client", Plan: plan}
	}
	if plan.Confidence < g.clarifyBelow && !in.Confirmed {
		return Decision{Action: ActionClarify, Message: ClarificationQuestion(plan), Reason: "low confidence", Plan: plan}
	}

	if matchesAny(q, reframePatterns) {
		plan.Reframed = true
		if plan.Intent == models.IntentOther {
			plan.Intent = models.IntentSummarize
		}
		return Decision{Action: ActionReframe, Message: ReframeMessage, Reason: "ambiguous tax phrasing", Plan: plan}
	}

	return Decision{Action: ActionAllow, Plan: plan}
}

var intentPhrases = map[models.Intent]string{
	models.IntentSummary:   "totals",
	models.IntentTrend:     "trend over time",
	models.IntentCompare:   "comparison by date",
	models.IntentBreakdown: "breakdown",
}

// ClarificationQuestion turns a low-confidence plan into a "Did you mean"
// question built from whatever the plan did pick up.
func ClarificationQuestion(plan models.Plan) string {
	var parts []string
	switch {
	case plan.Metric != "":
		parts = append(parts, DisplayMetric(plan.Metric))
	case intentPhrases[plan.Intent] != "":
		parts = append(parts, intentPhrases[plan.Intent])
	}
	if !plan.DateRange.IsZero() {
		if plan.DateRange.IsSingleDay() {
			parts = append(parts, "for "+plan.DateRange.From.Format("2 Jan 2006"))
		} else {
			parts = append(parts, fmt.Sprintf("for %s to %s",
				plan.DateRange.From.Format("2 Jan 2006"), plan.DateRange.To.Format("2 Jan 2006")))
		}
	}
	if plan.Tag != "" {
		parts = append(parts, "for client "+plan.Tag)
	}
	if len(parts) == 0 {
		return "Your question seems ambiguous. Please add a date or date range, client name, " +
			"or rephrase (e.g. 'GST on 12 Jan 2025', 'expense trend for Jan 2025')."
	}
	return "Did you mean " + strings.Join(parts, " ") + "?"
}

// DisplayMetric renders a metric concept for people: "gst_amount" becomes
// "GST amount".
func DisplayMetric(concept string) string {
	words := strings.Split(concept, "_")
	for i, w := range words {
		switch w {
		case "gst", "cgst", "sgst", "igst":
			words[i] = strings.ToUpper(w)
		}
	}
	return strings.Join(words, " ")
}
