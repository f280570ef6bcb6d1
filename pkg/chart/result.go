package chart

import (
	"strconv"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// FromResult derives the chart input for an analysis result: groups for a
// breakdown, the period series for a trend, the two scopes for a comparison
// and the single total otherwise.
func FromResult(plan models.Plan, res *models.AnalysisResult) Input {
	in := Input{
		Intent:  res.Intent,
		Request: plan.Chart,
		XAxis:   plan.Chart.XAxis,
		YAxis:   res.MetricColumn,
	}
	switch {
	case res.Intent == models.IntentBreakdown:
		in.XAxis = res.GroupBy
		for _, g := range res.Groups {
			in.Points = append(in.Points, RawPoint{X: g.Key, Y: g.Total})
		}
	case res.Intent == models.IntentCompare && res.Comparison != nil:
		in.XAxis = "scope"
		in.Points = []RawPoint{
			{X: res.Comparison.Baseline.Range.String(), Y: res.Comparison.Baseline.Total},
			{X: res.Comparison.Current.Range.String(), Y: res.Comparison.Current.Total},
		}
	case res.Series != nil:
		in.XAxis = "date"
		for _, p := range res.Series {
			in.Points = append(in.Points, RawPoint{X: p.Period, Y: p.Total})
		}
	default:
		in.XAxis = "scope"
		in.Points = []RawPoint{{X: plan.DateRange.String(), Y: res.Total}}
	}
	return in
}

// Decide validates the chart for res. On fallback the table is the full
// tabular form of the result rather than the bare x/y pairs.
func Decide(plan models.Plan, res *models.AnalysisResult) Decision {
	if res == nil {
		return Decision{Reason: ReasonTooFewPoints}
	}
	d := Validate(FromResult(plan, res))
	if !d.Approved() {
		d.Table = Table(res, plan.DateRange)
	}
	return d
}

// Table reshapes an analysis result into rows with two-decimal figures.
func Table(res *models.AnalysisResult, scope models.DateRange) *models.TablePayload {
	metric := res.MetricColumn
	if metric == "" {
		metric = "value"
	}
	switch {
	case res.Intent == models.IntentBreakdown:
		t := &models.TablePayload{Columns: []string{res.GroupBy, metric, "rows"}}
		for _, g := range res.Groups {
			t.Rows = append(t.Rows, []string{g.Key, analyst.Format(g.Total), strconv.Itoa(g.Rows)})
		}
		return t
	case res.Intent == models.IntentCompare && res.Comparison != nil:
		c := res.Comparison
		t := &models.TablePayload{Columns: []string{"scope", metric, "rows"}}
		t.Rows = append(t.Rows,
			[]string{c.Baseline.Range.String(), analyst.Format(c.Baseline.Total), strconv.Itoa(c.Baseline.RowCount)},
			[]string{c.Current.Range.String(), analyst.Format(c.Current.Total), strconv.Itoa(c.Current.RowCount)},
			[]string{"difference", analyst.Format(c.Difference), ""},
		)
		if c.PercentChange != nil {
			t.Rows = append(t.Rows, []string{"change %", analyst.Format(*c.PercentChange), ""})
		}
		return t
	case res.Series != nil:
		t := &models.TablePayload{Columns: []string{"period", metric, "rows"}}
		for _, p := range res.Series {
			t.Rows = append(t.Rows, []string{p.Period, analyst.Format(p.Total), strconv.Itoa(p.Rows)})
		}
		return t
	default:
		return &models.TablePayload{
			Columns: []string{"scope", metric, "rows"},
			Rows:    [][]string{{scope.String(), analyst.Format(res.Total), strconv.Itoa(res.RowCount)}},
		}
	}
}
