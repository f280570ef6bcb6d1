package responder

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/policy"
)

// List caps for non-summary answers. Summarize questions list everything.
const (
	maxGroupLines  = 15
	maxSeriesLines = 10
)

// ScopeContext renders the scope a result was computed for, e.g.
// "data date range: 2025-01-01 to 2025-01-31; client: Acme; metric: GST amount".
func ScopeContext(plan models.Plan) string {
	var parts []string
	kind := "data date"
	if plan.DateFilterType == models.DateFilterUpload {
		kind = "upload date"
	}
	switch {
	case len(plan.CompareRanges) > 0:
		ranges := make([]string, len(plan.CompareRanges))
		for i, r := range plan.CompareRanges {
			ranges[i] = r.String()
		}
		parts = append(parts, kind+"s: "+strings.Join(ranges, " vs "))
	case plan.DateRange.IsSingleDay():
		parts = append(parts, kind+": "+plan.DateRange.String())
	case !plan.DateRange.IsZero():
		parts = append(parts, kind+" range: "+plan.DateRange.String())
	}
	if plan.Tag != "" {
		parts = append(parts, "client: "+plan.Tag)
	}
	if plan.Metric != "" {
		parts = append(parts, "metric: "+policy.DisplayMetric(plan.Metric))
	}
	return strings.Join(parts, "; ")
}

// Template phrases res without a language model.
func Template(plan models.Plan, res *models.AnalysisResult) string {
	if res == nil {
		return "No result was computed for this question."
	}
	full := plan.Intent == models.IntentSummarize

	var lines []string
	if ctx := ScopeContext(plan); ctx != "" {
		lines = append(lines, "Context: "+ctx+".")
	}
	if res.MinDate != nil && res.MaxDate != nil {
		lines = append(lines, fmt.Sprintf("Date range in data: %s to %s.",
			res.MinDate.Format(models.DateLayout), res.MaxDate.Format(models.DateLayout)))
	}
	lines = append(lines, fmt.Sprintf("Total %s: %s (from %s).",
		metricLabel(res), FormatAmount(res.Total), rowsPhrase(res.RowCount)))
	if res.UndatedRows > 0 {
		lines = append(lines, fmt.Sprintf("Includes %s from %s without a date.",
			FormatAmount(res.UndatedTotal), rowsPhrase(res.UndatedRows)))
	}

	if len(res.Groups) > 0 {
		lines = append(lines, fmt.Sprintf("Breakdown by %s:", res.GroupBy))
		groups := res.Groups
		if !full && len(groups) > maxGroupLines {
			groups = groups[:maxGroupLines]
		}
		for _, g := range groups {
			lines = append(lines, fmt.Sprintf("  - %s: %s", g.Key, FormatAmount(g.Total)))
		}
		if more := len(res.Groups) - len(groups); more > 0 {
			lines = append(lines, fmt.Sprintf("  ... and %d more.", more))
		}
	}

	if len(res.Series) > 0 {
		lines = append(lines, fmt.Sprintf("Trend by %s:", res.Granularity))
		series := res.Series
		if !full && len(series) > maxSeriesLines {
			series = series[:maxSeriesLines]
		}
		for _, p := range series {
			lines = append(lines, fmt.Sprintf("  - %s: %s", p.Period, FormatAmount(p.Total)))
		}
		if more := len(res.Series) - len(series); more > 0 {
			lines = append(lines, fmt.Sprintf("  ... and %d more periods.", more))
		}
	}

	if c := res.Comparison; c != nil {
		lines = append(lines, "Comparison:",
			fmt.Sprintf("  - %s: %s", c.Baseline.Range, FormatAmount(c.Baseline.Total)),
			fmt.Sprintf("  - %s: %s", c.Current.Range, FormatAmount(c.Current.Total)))
		change := "no percentage, the first scope totals zero"
		if c.PercentChange != nil {
			change = signed(*c.PercentChange) + "%"
		}
		lines = append(lines, fmt.Sprintf("  - Difference: %s (%s)", signed(c.Difference), change))
	}

	return strings.Join(lines, "\n")
}

// NoDataMessage explains an empty scope and points at dates that do hold
// rows in the same dataset version.
func NoDataMessage(plan models.Plan, nearby []string) string {
	var b strings.Builder
	b.WriteString("No records found")
	if plan.Tag != "" {
		b.WriteString(" for " + plan.Tag)
	}
	on := "on"
	if plan.DateFilterType == models.DateFilterUpload {
		on = "uploaded on"
	}
	switch {
	case len(plan.CompareRanges) > 0:
		ranges := make([]string, len(plan.CompareRanges))
		for i, r := range plan.CompareRanges {
			ranges[i] = r.String()
		}
		fmt.Fprintf(&b, " %s %s", on, strings.Join(ranges, " or "))
	case plan.DateRange.IsSingleDay():
		fmt.Fprintf(&b, " %s %s", on, plan.DateRange.String())
	case !plan.DateRange.IsZero():
		fmt.Fprintf(&b, " between %s and %s",
			plan.DateRange.From.Format(models.DateLayout), plan.DateRange.To.Format(models.DateLayout))
	}
	b.WriteString(".")

	switch {
	case len(nearby) > 0 && plan.Tag != "":
		fmt.Fprintf(&b, " Data exists for this client on other dates, e.g. %s.", strings.Join(nearby, ", "))
	case len(nearby) > 0:
		fmt.Fprintf(&b, " Data exists on other dates, e.g. %s.", strings.Join(nearby, ", "))
	case plan.Tag != "":
		b.WriteString(" No data has been uploaded for this client yet.")
	default:
		b.WriteString(" The active dataset has no rows in this scope.")
	}
	return b.String()
}

// FormatAmount renders d rounded to two places with thousands separators,
// e.g. 1234567.891 as "1,234,567.89".
func FormatAmount(d decimal.Decimal) string {
	s := analyst.Format(d)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(".")
	b.WriteString(frac)
	return b.String()
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + FormatAmount(d)
	}
	return FormatAmount(d)
}

func metricLabel(res *models.AnalysisResult) string {
	label := res.MetricColumn
	if res.Metric != "" {
		label = policy.DisplayMetric(res.Metric)
	}
	if label == "" {
		return "value"
	}
	return label
}

func rowsPhrase(n int) string {
	if n == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", n)
}
