// Package router classifies a planned query into exactly one execution path.
package router

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/resolver"
)

// Route is an execution path.
type Route string

const (
	RouteSchema      Route = "schema"      // metadata-only answer
	RouteData        Route = "data"        // row retrieval and analysis
	RouteVague       Route = "vague"       // data path after default-filling
	RouteExplanation Route = "explanation" // data path that may also consult retrieval
)

// schemaPatterns err on the side of over-matching so follow-ups like
// "attribute names" still get a metadata answer.
var schemaPatterns = compileAll(
	`\bhow\s+many\s+columns?\b`,
	`\bhow\s+many\s+rows?\b`,
	`\bhow\s+many\s+attributes?\b`,
	`\b(?:number|count)\s+of\s+(?:rows?|columns?)\b`,
	`\brows?\s+in\s+(?:the\s+)?(?:uploaded\s+)?file\b`,
	`\bwhat\s+(?:are\s+)?(?:the\s+)?(?:column|attribute)s?\b`,
	`\bwhich\s+columns\b`,
	`\bcolumn\s+names?\b`,
	`\bschema\s+info\b`,
	`\battributes?\s+(?:present|names?)\b`,
	`\bnames?\s+of\s+(?:the\s+)?(?:attributes?|columns?)\b`,
	`\battribute\s+names?\b`,
	`\brows?\s+(?:are\s+there|there\s+are)\b`,
)

var vaguePatterns = compileAll(
	`\bgive\s+(?:me\s+)?(?:a\s+)?chart\b`,
	`\bget\s+(?:a\s+)?chart\b`,
	`\bshow\s+(?:me\s+)?(?:the\s+)?data\b`,
	`\bdisplay\s+(?:the\s+)?data\b`,
	`\bplot\s+(?:it|data|the\s+data)\b`,
)

var whyPattern = regexp.MustCompile(`\bwhy\b`)

var genericWords = []string{"chart", "data", "show", "give", "display"}

func compileAll(patterns ...string) []*regexp.Regexp {
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

// IsSchemaQuery reports whether the text alone asks about the dataset's shape.
func IsSchemaQuery(query string) bool {
	return matchesAny(strings.ToLower(query), schemaPatterns)
}

// IsVagueQuery reports whether the text is a generic request for data or a
// chart with nothing specific in it.
func IsVagueQuery(query string) bool {
	return matchesAny(strings.ToLower(query), vaguePatterns)
}

// Classify picks the route for a plan. It is pure and deterministic.
func Classify(plan models.Plan, query string) Route {
	q := strings.ToLower(strings.TrimSpace(query))

	if plan.Intent == models.IntentSchema || matchesAny(q, schemaPatterns) {
		return RouteSchema
	}
	if plan.Intent == models.IntentExplain || plan.Intent == models.IntentSummarize || whyPattern.MatchString(q) {
		return RouteExplanation
	}
	if matchesAny(q, vaguePatterns) {
		return RouteVague
	}
	if !plan.HasDates() && plan.Metric == "" && plan.Intent == models.IntentOther {
		for _, w := range genericWords {
			if strings.Contains(q, w) {
				return RouteVague
			}
		}
	}
	return RouteData
}

// ApplyDefaults fills a vague plan: the full available date range, the
// default metric for the schema, and a trend line chart. A chart kind the
// question asked for is kept; so are the plan's metric and dates.
func ApplyDefaults(plan models.Plan, r *resolver.Resolver, schema models.DatasetSchema) models.Plan {
	out := plan.Clone()
	out.Defaulted = true
	if out.Metric == "" {
		if concept, col, ok := r.DefaultMetric(schema); ok {
			out = out.WithMetric(concept, col)
		}
	}
	converted := out.Intent == models.IntentOther
	if converted {
		out.Intent = models.IntentTrend
	}
	if out.Intent != models.IntentTrend {
		return out
	}

	// The planner always picks a type; only NeedsChart says one was asked for.
	if !out.Chart.NeedsChart || out.Chart.Type == "" {
		out.Chart.NeedsChart = true
		out.Chart.Type = models.ChartLine
	}
	if converted || out.Chart.XAxis == "" {
		out.Chart.XAxis = "date"
	}
	if converted || out.Chart.YAxis == "" {
		out.Chart.YAxis = out.Metric
	}
	if converted || out.Chart.ScopeLabel == "" {
		out.Chart.ScopeLabel = "Trend over time"
	}
	return out
}
