package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Granularity of a period series.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// PeriodTotal is the metric total for one day or month.
type PeriodTotal struct {
	Period string          `json:"period"` // 2025-01-12 or 2025-01
	Start  time.Time       `json:"start"`
	Total  decimal.Decimal `json:"total"`
	Rows   int             `json:"rows"`
}

// GroupTotal is the metric total for one value of the grouping column.
type GroupTotal struct {
	Key   string          `json:"key"`
	Total decimal.Decimal `json:"total"`
	Rows  int             `json:"rows"`
}

// Aggregates are the per-day and per-month totals for one scope. They are
// what the aggregation cache stores and must not be mutated once built.
type Aggregates struct {
	Daily        []PeriodTotal   `json:"daily"`
	Monthly      []PeriodTotal   `json:"monthly"`
	Total        decimal.Decimal `json:"total"`
	UndatedTotal decimal.Decimal `json:"undated_total"`
	UndatedRows  int             `json:"undated_rows"`
	RowCount     int             `json:"row_count"`
	MinDate      *time.Time      `json:"min_date,omitempty"`
	MaxDate      *time.Time      `json:"max_date,omitempty"`
}

// ScopeTotal is the total for one side of a comparison.
type ScopeTotal struct {
	Range    DateRange       `json:"range"`
	Total    decimal.Decimal `json:"total"`
	RowCount int             `json:"row_count"`
}

// Comparison holds two scopes and their difference. PercentChange is nil
// when the baseline total is zero.
type Comparison struct {
	Baseline      ScopeTotal       `json:"baseline"`
	Current       ScopeTotal       `json:"current"`
	Difference    decimal.Decimal  `json:"difference"`
	PercentChange *decimal.Decimal `json:"percent_change,omitempty"`
}

// AnalysisResult is the Analyst's structured output. It never carries prose.
type AnalysisResult struct {
	Intent       Intent          `json:"intent"`
	Metric       string          `json:"metric"`
	MetricColumn string          `json:"metric_column"`
	GroupBy      string          `json:"group_by,omitempty"`
	Total        decimal.Decimal `json:"total"`
	RowCount     int             `json:"row_count"`
	MinDate      *time.Time      `json:"min_date,omitempty"`
	MaxDate      *time.Time      `json:"max_date,omitempty"`
	Groups       []GroupTotal    `json:"groups,omitempty"`
	Granularity  Granularity     `json:"granularity,omitempty"`
	Series       []PeriodTotal   `json:"series,omitempty"`
	UndatedTotal decimal.Decimal `json:"undated_total"`
	UndatedRows  int             `json:"undated_rows,omitempty"`
	Comparison   *Comparison     `json:"comparison,omitempty"`
}
