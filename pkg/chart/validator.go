// Package chart decides whether an analysis result is rendered as a chart or
// falls back to a table. The rules are deterministic; the table always
// carries the same data the chart would have shown.
package chart

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// Fallback reasons shown to users.
const (
	ReasonNotRequested    = "Showing data as table (chart not requested for this query)."
	ReasonTooFewPoints    = "Showing data as table (fewer than two data points to chart)."
	ReasonXAxisType       = "Showing data as table (the x-axis values are neither dates nor categories)."
	ReasonLineNeedsDates  = "Showing data as table (a line chart needs dates on the x-axis)."
	ReasonYAxisType       = "Showing data as table (the values to plot are not numeric)."
	ReasonTrendNeedsDates = "Showing data as table (a trend needs dates on the x-axis)."
	ReasonSinglePeriod    = "Showing data as table (the data covers a single period, so there is no trend to draw)."
	ReasonPieNegative     = "Showing data as table (a pie chart cannot show negative values)."
	ReasonUnknownType     = "Showing data as table (unsupported chart type)."
)

// RawPoint is an x/y pair before validation. Y may be any cell value.
type RawPoint struct {
	X string
	Y any
}

// Input is what the validator checks.
type Input struct {
	Intent  models.Intent
	Request models.ChartRequest
	XAxis   string
	YAxis   string
	Points  []RawPoint
}

// Decision is either an approved chart or a table fallback with a reason.
type Decision struct {
	Chart  *models.ChartPayload
	Table  *models.TablePayload
	Reason string
}

// Approved reports whether a chart was produced.
func (d Decision) Approved() bool {
	return d.Chart != nil
}

var xDateLayouts = []string{models.DateLayout, "2006-01"}

func parseX(s string) (time.Time, bool) {
	for _, layout := range xDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Validate applies the rules in order: a chart was requested, at least two
// distinct x values, x values are all dates or all categories, y values are
// numeric, the kind suits the x values, and a trend spans more than one
// period. The first failing rule names the fallback reason.
func Validate(in Input) Decision {
	if reason, ok := check(in); !ok {
		return Decision{Table: rawTable(in), Reason: reason}
	}

	points := make([]models.ChartPoint, len(in.Points))
	for i, p := range in.Points {
		y, _ := analyst.ParseAmount(p.Y)
		points[i] = models.ChartPoint{X: p.X, Y: analyst.Round(y)}
	}
	return Decision{Chart: &models.ChartPayload{
		Type:   in.Request.Type,
		Title:  in.Request.ScopeLabel,
		XAxis:  in.XAxis,
		YAxis:  in.YAxis,
		Points: points,
	}}
}

func check(in Input) (string, bool) {
	if !in.Request.NeedsChart {
		return ReasonNotRequested, false
	}

	distinct := make(map[string]struct{}, len(in.Points))
	periods := make(map[time.Time]struct{}, len(in.Points))
	allDates, allCategories := true, true
	for _, p := range in.Points {
		if p.X == "" {
			allCategories = false
			allDates = false
			continue
		}
		distinct[p.X] = struct{}{}
		if t, ok := parseX(p.X); ok {
			periods[t] = struct{}{}
		} else {
			allDates = false
		}
	}
	if len(distinct) < 2 {
		return ReasonTooFewPoints, false
	}
	if !allDates && !allCategories {
		return ReasonXAxisType, false
	}

	negative := false
	for _, p := range in.Points {
		y, ok := analyst.ParseAmount(p.Y)
		if !ok {
			return ReasonYAxisType, false
		}
		if y.LessThan(decimal.Zero) {
			negative = true
		}
	}

	switch in.Request.Type {
	case models.ChartLine:
		if !allDates {
			return ReasonLineNeedsDates, false
		}
	case models.ChartPie:
		if negative {
			return ReasonPieNegative, false
		}
	case models.ChartBar:
	default:
		return ReasonUnknownType, false
	}

	if in.Intent == models.IntentTrend {
		if !allDates {
			return ReasonTrendNeedsDates, false
		}
		if len(periods) < 2 {
			return ReasonSinglePeriod, false
		}
	}
	return "", true
}

func rawTable(in Input) *models.TablePayload {
	x, y := in.XAxis, in.YAxis
	if x == "" {
		x = "x"
	}
	if y == "" {
		y = "value"
	}
	t := &models.TablePayload{Columns: []string{x, y}, Rows: make([][]string, 0, len(in.Points))}
	for _, p := range in.Points {
		cell := fmt.Sprint(p.Y)
		if d, ok := analyst.ParseAmount(p.Y); ok {
			cell = analyst.Format(d)
		}
		t.Rows = append(t.Rows, []string{p.X, cell})
	}
	return t
}
