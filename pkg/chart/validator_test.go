package chart

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

func lineRequest() models.ChartRequest {
	return models.ChartRequest{NeedsChart: true, Type: models.ChartLine, XAxis: "date", YAxis: "amount", ScopeLabel: "amount trend"}
}

func points(pairs ...any) []RawPoint {
	var out []RawPoint
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, RawPoint{X: pairs[i].(string), Y: pairs[i+1]})
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		in     Input
		reason string
	}{
		{
			name: "daily trend",
			in: Input{Intent: models.IntentTrend, Request: lineRequest(), XAxis: "date", YAxis: "amount",
				Points: points("2025-01-10", 100.0, "2025-01-12", "250.50")},
		},
		{
			name: "monthly trend",
			in: Input{Intent: models.IntentTrend, Request: lineRequest(),
				Points: points("2025-01", 100, "2025-02", 120)},
		},
		{
			name: "categorical bar",
			in: Input{Intent: models.IntentBreakdown,
				Request: models.ChartRequest{NeedsChart: true, Type: models.ChartBar},
				Points:  points("Travel", 10, "Office", 20)},
		},
		{
			name:   "not requested",
			in:     Input{Intent: models.IntentSummary, Points: points("2025-01-10", 1, "2025-01-11", 2)},
			reason: ReasonNotRequested,
		},
		{
			name:   "single point",
			in:     Input{Intent: models.IntentTrend, Request: lineRequest(), Points: points("2025-01-12", 540)},
			reason: ReasonTooFewPoints,
		},
		{
			name:   "repeated x value",
			in:     Input{Intent: models.IntentTrend, Request: lineRequest(), Points: points("2025-01-12", 1, "2025-01-12", 2)},
			reason: ReasonTooFewPoints,
		},
		{
			name:   "blank x value",
			in:     Input{Intent: models.IntentBreakdown, Request: models.ChartRequest{NeedsChart: true, Type: models.ChartBar}, Points: points("a", 1, "", 2, "b", 3)},
			reason: ReasonXAxisType,
		},
		{
			name:   "text y value",
			in:     Input{Intent: models.IntentBreakdown, Request: models.ChartRequest{NeedsChart: true, Type: models.ChartBar}, Points: points("a", 1, "b", "lots")},
			reason: ReasonYAxisType,
		},
		{
			name:   "line over categories",
			in:     Input{Intent: models.IntentBreakdown, Request: lineRequest(), Points: points("Travel", 1, "Office", 2)},
			reason: ReasonLineNeedsDates,
		},
		{
			name:   "trend drawn as bars over categories",
			in:     Input{Intent: models.IntentTrend, Request: models.ChartRequest{NeedsChart: true, Type: models.ChartBar}, Points: points("Travel", 1, "Office", 2)},
			reason: ReasonTrendNeedsDates,
		},
		{
			name:   "month and its first day are one period",
			in:     Input{Intent: models.IntentTrend, Request: lineRequest(), Points: points("2025-01", 1, "2025-01-01", 2)},
			reason: ReasonSinglePeriod,
		},
		{
			name:   "negative pie slice",
			in:     Input{Intent: models.IntentBreakdown, Request: models.ChartRequest{NeedsChart: true, Type: models.ChartPie}, Points: points("a", 1, "b", -2)},
			reason: ReasonPieNegative,
		},
		{
			name:   "unknown type",
			in:     Input{Intent: models.IntentBreakdown, Request: models.ChartRequest{NeedsChart: true, Type: "radar"}, Points: points("a", 1, "b", 2)},
			reason: ReasonUnknownType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Validate(tt.in)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.reason == "" {
				require.True(t, d.Approved())
				assert.Nil(t, d.Table)
				assert.Len(t, d.Chart.Points, len(tt.in.Points))
				return
			}
			assert.False(t, d.Approved())
			require.NotNil(t, d.Table)
			assert.Len(t, d.Table.Rows, len(tt.in.Points))
		})
	}
}

func TestValidate_RoundsApprovedPoints(t *testing.T) {
	d := Validate(Input{Intent: models.IntentTrend, Request: lineRequest(), XAxis: "date", YAxis: "gst",
		Points: points("2025-01-10", "180.005", "2025-01-12", 540)})

	require.True(t, d.Approved())
	assert.Equal(t, "180.01", d.Chart.Points[0].Y.StringFixed(2))
	assert.Equal(t, "amount trend", d.Chart.Title)
	assert.Equal(t, models.ChartLine, d.Chart.Type)
	assert.Equal(t, "gst", d.Chart.YAxis)
}

func day(d int) time.Time {
	return time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC)
}

func TestDecide(t *testing.T) {
	dec := decimal.RequireFromString

	t.Run("trend approved", func(t *testing.T) {
		plan := models.Plan{Intent: models.IntentTrend, Chart: lineRequest()}
		res := &models.AnalysisResult{Intent: models.IntentTrend, MetricColumn: "amount", Series: []models.PeriodTotal{
			{Period: "2025-01-10", Start: day(10), Total: dec("1000"), Rows: 1},
			{Period: "2025-01-12", Start: day(12), Total: dec("3000"), Rows: 2},
		}}
		d := Decide(plan, res)
		require.True(t, d.Approved())
		assert.Equal(t, "date", d.Chart.XAxis)
		assert.Equal(t, "2025-01-12", d.Chart.Points[1].X)
	})

	t.Run("single point summary falls back to a table", func(t *testing.T) {
		plan := models.Plan{Intent: models.IntentSummary, DateRange: models.SingleDay(day(12))}
		res := &models.AnalysisResult{Intent: models.IntentSummary, MetricColumn: "gst", Total: dec("540"), RowCount: 2}
		d := Decide(plan, res)
		assert.False(t, d.Approved())
		assert.Equal(t, ReasonNotRequested, d.Reason)
		assert.Equal(t, []string{"scope", "gst", "rows"}, d.Table.Columns)
		assert.Equal(t, [][]string{{"2025-01-12", "540.00", "2"}}, d.Table.Rows)
	})

	t.Run("breakdown uses the grouping column", func(t *testing.T) {
		plan := models.Plan{Intent: models.IntentBreakdown, Chart: models.ChartRequest{NeedsChart: true, Type: models.ChartBar}}
		res := &models.AnalysisResult{Intent: models.IntentBreakdown, MetricColumn: "amount", GroupBy: "category",
			Groups: []models.GroupTotal{{Key: "Office", Total: dec("2500.5"), Rows: 1}, {Key: "Travel", Total: dec("1499.5"), Rows: 2}}}
		d := Decide(plan, res)
		require.True(t, d.Approved())
		assert.Equal(t, "category", d.Chart.XAxis)
	})

	t.Run("comparison table", func(t *testing.T) {
		pct := dec("200")
		res := &models.AnalysisResult{Intent: models.IntentCompare, MetricColumn: "gst", Comparison: &models.Comparison{
			Baseline:      models.ScopeTotal{Range: models.SingleDay(day(10)), Total: dec("180"), RowCount: 1},
			Current:       models.ScopeTotal{Range: models.SingleDay(day(12)), Total: dec("540"), RowCount: 2},
			Difference:    dec("360"),
			PercentChange: &pct,
		}}
		table := Table(res, models.DateRange{})
		assert.Equal(t, []string{"2025-01-10", "180.00", "1"}, table.Rows[0])
		assert.Equal(t, []string{"difference", "360.00", ""}, table.Rows[2])
		assert.Equal(t, []string{"change %", "200.00", ""}, table.Rows[3])

		d := Decide(models.Plan{Intent: models.IntentCompare, Chart: models.ChartRequest{NeedsChart: true, Type: models.ChartBar}}, res)
		require.True(t, d.Approved())
		assert.Equal(t, "scope", d.Chart.XAxis)
	})

	t.Run("nil result", func(t *testing.T) {
		d := Decide(models.Plan{}, nil)
		assert.False(t, d.Approved())
		assert.Nil(t, d.Table)
	})
}
