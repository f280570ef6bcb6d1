package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome classifies how a query ended.
type Outcome string

const (
	OutcomeAnswered         Outcome = "answered"
	OutcomeSchema           Outcome = "schema"
	OutcomeClarification    Outcome = "clarification"
	OutcomeBlocked          Outcome = "blocked"
	OutcomeUnresolvedColumn Outcome = "unresolved_column"
	OutcomeAmbiguousColumn  Outcome = "ambiguous_column"
	OutcomeScopeViolation   Outcome = "scope_violation"
	OutcomeNoData           Outcome = "no_data"
	OutcomeNoDataset        Outcome = "no_dataset"
)

// ChartPoint is one x/y pair. X is a date (2006-01-02 or 2006-01) or a
// category label.
type ChartPoint struct {
	X string          `json:"x"`
	Y decimal.Decimal `json:"y"`
}

// ChartPayload is an approved chart ready for rendering.
type ChartPayload struct {
	Type   string       `json:"type"`
	Title  string       `json:"title,omitempty"`
	XAxis  string       `json:"x_axis"`
	YAxis  string       `json:"y_axis"`
	Points []ChartPoint `json:"points"`
}

// TablePayload is the tabular form of a result.
type TablePayload struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Diagnostics record how an answer was produced.
type Diagnostics struct {
	OriginalQuery       string            `json:"original_query"`
	NormalizedQuery     string            `json:"normalized_query"`
	Corrections         map[string]string `json:"correction_map,omitempty"`
	IsClarification     bool              `json:"is_clarification"`
	PolicyAction        string            `json:"policy_action,omitempty"`
	Route               string            `json:"route,omitempty"`
	PlanSource          string            `json:"plan_source,omitempty"`
	Intent              Intent            `json:"intent,omitempty"`
	Confidence          float64           `json:"confidence"`
	DatasetVersionID    uuid.UUID         `json:"dataset_version_id"`
	Metric              string            `json:"metric,omitempty"`
	MetricColumn        string            `json:"metric_column,omitempty"`
	DateRange           string            `json:"date_range,omitempty"`
	DateFilterType      DateFilterType    `json:"date_filter_type,omitempty"`
	Tag                 string            `json:"tag,omitempty"`
	Resolution          *ResolutionResult `json:"resolution,omitempty"`
	RowsFetched         int               `json:"rows_fetched"`
	CacheHit            bool              `json:"cache_hit"`
	Truncated           bool              `json:"truncated,omitempty"`
	ScopeViolation      bool              `json:"scope_violation,omitempty"`
	SearchedScope       string            `json:"searched_scope,omitempty"`
	NearbyDates         []string          `json:"nearby_dates,omitempty"`
	RetrievedContext    []string          `json:"retrieved_context,omitempty"`
	ChartFallbackReason string            `json:"chart_fallback_reason,omitempty"`
	PhrasingSource      string            `json:"phrasing_source,omitempty"`
}

// Answer is the single result shape of the engine.
type Answer struct {
	Outcome     Outcome         `json:"outcome"`
	Message     string          `json:"message"`
	Result      *AnalysisResult `json:"result,omitempty"`
	Chart       *ChartPayload   `json:"chart,omitempty"`
	Table       *TablePayload   `json:"table,omitempty"`
	Diagnostics Diagnostics     `json:"diagnostics"`
}
