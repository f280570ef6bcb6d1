package models

import "github.com/google/uuid"

// Intent is the kind of question being asked.
type Intent string

const (
	IntentSummary   Intent = "summary"   // point lookup or total over a scope
	IntentBreakdown Intent = "breakdown" // totals per group value
	IntentTrend     Intent = "trend"     // per-period series
	IntentCompare   Intent = "compare"   // two date scopes side by side
	IntentSchema    Intent = "schema"    // question about the dataset itself
	IntentSummarize Intent = "summarize"
	IntentExplain   Intent = "explain"
	IntentOther     Intent = "other"
)

// ParseIntent maps loose labels (including the ones language models tend to
// produce) onto an Intent. Unknown labels become IntentOther.
func ParseIntent(s string) Intent {
	switch s {
	case "summary", "point", "point_lookup", "lookup", "total", "gst_summary":
		return IntentSummary
	case "breakdown", "expense_breakdown", "group", "distribution":
		return IntentBreakdown
	case "trend", "series", "time_series":
		return IntentTrend
	case "compare", "comparison", "compare_dates":
		return IntentCompare
	case "schema", "schema_query", "metadata":
		return IntentSchema
	case "summarize":
		return IntentSummarize
	case "explain", "insights", "why":
		return IntentExplain
	default:
		return IntentOther
	}
}

// RequiresDate reports whether the intent cannot be answered without a date.
func (i Intent) RequiresDate() bool {
	return i == IntentSummary || i == IntentTrend || i == IntentCompare
}

// Chart types.
const (
	ChartLine = "line"
	ChartBar  = "bar"
	ChartPie  = "pie"
)

// ChartRequest describes the chart a plan asks for.
type ChartRequest struct {
	NeedsChart bool   `json:"needs_chart"`
	Type       string `json:"type,omitempty"`
	XAxis      string `json:"x_axis,omitempty"`
	YAxis      string `json:"y_axis,omitempty"`
	ScopeLabel string `json:"scope_label,omitempty"`
}

// Plan sources.
const (
	PlanSourceLLM       = "llm"
	PlanSourceHeuristic = "heuristic"
)

// Plan is the structured reading of a query. It is passed by value between
// stages; each stage may fill empty fields but never reverts one.
type Plan struct {
	Intent         Intent         `json:"intent"`
	Confidence     float64        `json:"confidence"`
	DateRange      DateRange      `json:"date_range"`
	CompareRanges  []DateRange    `json:"compare_ranges,omitempty"`
	DateFilterType DateFilterType `json:"date_filter_type"`
	Tag            string         `json:"tag,omitempty"`
	Metric         string         `json:"metric,omitempty"`        // canonical concept
	MetricColumn   string         `json:"metric_column,omitempty"` // resolved column
	GroupBy        []string       `json:"group_by,omitempty"`
	Chart          ChartRequest   `json:"chart"`
	RiskFlag       bool           `json:"risk_flag"`
	Reframed       bool           `json:"reframed,omitempty"`
	Defaulted      bool           `json:"defaulted,omitempty"`
	Source         string         `json:"source"`

	// DatasetVersionID is attached by the orchestration layer only.
	DatasetVersionID uuid.UUID `json:"dataset_version_id"`
}

// IsBound reports whether the plan has been scoped to a dataset version.
func (p Plan) IsBound() bool {
	return p.DatasetVersionID != uuid.Nil
}

// HasDates reports whether any date scope was extracted.
func (p Plan) HasDates() bool {
	return !p.DateRange.IsZero() || len(p.CompareRanges) > 0
}

// Clone returns a copy that shares no slices with p.
func (p Plan) Clone() Plan {
	c := p
	if p.CompareRanges != nil {
		c.CompareRanges = append([]DateRange(nil), p.CompareRanges...)
	}
	if p.GroupBy != nil {
		c.GroupBy = append([]string(nil), p.GroupBy...)
	}
	return c
}

// WithMetric fills the metric fields when they are still empty.
func (p Plan) WithMetric(concept, column string) Plan {
	c := p.Clone()
	if c.Metric == "" {
		c.Metric = concept
	}
	if c.MetricColumn == "" && c.Metric == concept {
		c.MetricColumn = column
	}
	return c
}

// WithGroupBy fills the group-by columns when none are set.
func (p Plan) WithGroupBy(cols []string) Plan {
	c := p.Clone()
	if len(c.GroupBy) == 0 && len(cols) > 0 {
		c.GroupBy = append([]string(nil), cols...)
	}
	return c
}

// BindTo attaches a dataset version. An already bound plan keeps its version.
func (p Plan) BindTo(id uuid.UUID) Plan {
	c := p.Clone()
	if !c.IsBound() {
		c.DatasetVersionID = id
	}
	return c
}

// ClarificationContext travels with a follow-up query that answers an
// earlier clarification request.
type ClarificationContext struct {
	OriginalQuery string `json:"original_query,omitempty"`
	Confirmed     bool   `json:"confirmed"`
}
