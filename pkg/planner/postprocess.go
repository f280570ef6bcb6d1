package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/resolver"
	"github.com/ekaya-inc/ekaya-insight/pkg/textmatch"
)

var (
	uploadPattern = regexp.MustCompile(`\buploads?\b|\buploaded\b|\bupload\s+date\b`)
	riskPattern   = regexp.MustCompile(`\bevade\b|\bevasion\b|\bhide\s+(?:my\s+)?income\b|\bblack\s+money\b|\bundeclared\b`)
	chartPattern  = regexp.MustCompile(`\bcharts?\b|\bgraphs?\b|\bplot\b|\bvisuali[sz]e\b`)
	pieWord       = regexp.MustCompile(`\bpie\b`)
	barWord       = regexp.MustCompile(`\bbar\b`)
	lineWord      = regexp.MustCompile(`\bline\b`)
)

// DetectUploadScope reports whether the query is about when a file was
// uploaded rather than about the dates inside it.
func DetectUploadScope(query string) bool {
	return uploadPattern.MatchString(strings.ToLower(query))
}

// finalize applies the deterministic rules shared by every capability. It
// fills and corrects; it never drops a date scope a capability found unless
// the query text itself states one.
func finalize(p models.Plan, req Request) models.Plan {
	out := p.Clone()
	q := strings.ToLower(req.Query)

	// Dates stated in the text win over a capability's reading, which also
	// expands a month the model collapsed to a single day.
	if dates := ExtractDates(q, req.ReferenceDate); len(dates) > 0 {
		out.CompareRanges = nil
		out.DateRange = models.DateRange{}
		for _, d := range dates {
			out.DateRange = out.DateRange.Union(d)
		}
		if out.Intent == models.IntentCompare && len(dates) >= 2 {
			out.CompareRanges = []models.DateRange{dates[0], dates[1]}
		}
	}
	if out.Intent == models.IntentCompare && len(out.CompareRanges) >= 2 && out.DateRange.IsZero() {
		out.DateRange = out.CompareRanges[0].Union(out.CompareRanges[1])
	}

	if DetectUploadScope(q) {
		out.DateFilterType = models.DateFilterUpload
	} else if out.DateFilterType != models.DateFilterUpload {
		out.DateFilterType = models.DateFilterEvent
	}

	if riskPattern.MatchString(q) {
		out.RiskFlag = true
	}

	out.Tag = canonicalTag(out.Tag, q, req.KnownTags)
	out.Metric = pickMetric(out.Metric, req.Resolution)
	out = applyGrouping(out, req.Resolution)
	out = applyChart(out, q)

	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out
}

// canonicalTag keeps a capability's tag, spelled the way the store knows
// it, or finds a known tag named in the query.
func canonicalTag(tag, query string, known []string) string {
	tag = strings.TrimSpace(tag)
	if tag != "" {
		for _, k := range known {
			if textmatch.Fold(k) == textmatch.Fold(tag) {
				return k
			}
		}
		return tag
	}
	return matchKnownTag(query, known)
}

// matchKnownTag returns the longest known tag spelled out, word-bounded, in
// the query.
func matchKnownTag(query string, known []string) string {
	padded := " " + strings.Join(textmatch.Words(query), " ") + " "
	best := ""
	for _, k := range known {
		words := textmatch.Words(k)
		if len(words) == 0 {
			continue
		}
		if strings.Contains(padded, " "+strings.Join(words, " ")+" ") && len(k) > len(best) {
			best = k
		}
	}
	return best
}

// pickMetric maps a capability's metric hint onto a concept, keeping it only
// when the query actually mentions that concept. Otherwise the first metric
// the query mentions is used, or none.
func pickMetric(hint string, res *models.ResolutionResult) string {
	if res == nil {
		return ""
	}
	if concept, ok := resolver.MetricConceptForHint(hint); ok {
		for _, m := range res.Mentioned {
			if m == concept {
				return concept
			}
		}
	}
	concept, _ := resolver.FirstMentionedMetric(res)
	return concept
}

// applyGrouping carries the resolver's group-by columns into the plan.
// Grouping by the date column is a trend, not a breakdown.
func applyGrouping(p models.Plan, res *models.ResolutionResult) models.Plan {
	if res == nil || len(res.GroupBy) == 0 {
		return p
	}
	dateCol, hasDate := res.Resolved[resolver.ConceptDate]
	var groups []string
	byDate := false
	for _, col := range res.GroupBy {
		if hasDate && col == dateCol {
			byDate = true
			continue
		}
		groups = append(groups, col)
	}
	p = p.WithGroupBy(groups)

	switch p.Intent {
	case models.IntentSummary, models.IntentOther:
		if len(p.GroupBy) > 0 {
			p.Intent = models.IntentBreakdown
		} else if byDate {
			p.Intent = models.IntentTrend
		}
	case models.IntentBreakdown:
		if len(p.GroupBy) == 0 && byDate {
			p.Intent = models.IntentTrend
		}
	}
	return p
}

// applyChart sets the chart request: explicit chart words or a
// trend/breakdown/compare intent ask for one; the type defaults by intent.
func applyChart(p models.Plan, q string) models.Plan {
	c := p.Chart
	switch p.Intent {
	case models.IntentTrend, models.IntentBreakdown, models.IntentCompare:
		c.NeedsChart = true
	}
	if chartPattern.MatchString(q) {
		c.NeedsChart = true
	}

	switch {
	case pieWord.MatchString(q):
		c.Type = models.ChartPie
	case barWord.MatchString(q):
		c.Type = models.ChartBar
	case lineWord.MatchString(q):
		c.Type = models.ChartLine
	case c.Type == "" || !validChartType(c.Type):
		c.Type = defaultChartType(p.Intent)
	}

	if c.XAxis == "" {
		switch p.Intent {
		case models.IntentBreakdown:
			if len(p.GroupBy) > 0 {
				c.XAxis = p.GroupBy[0]
			}
		case models.IntentCompare:
			c.XAxis = "scope"
		default:
			c.XAxis = "date"
		}
	}
	if c.YAxis == "" {
		c.YAxis = p.Metric
	}
	if c.ScopeLabel == "" {
		c.ScopeLabel = scopeLabel(p)
	}
	p.Chart = c
	return p
}

func validChartType(t string) bool {
	return t == models.ChartLine || t == models.ChartBar || t == models.ChartPie
}

func defaultChartType(intent models.Intent) string {
	switch intent {
	case models.IntentBreakdown, models.IntentCompare:
		return models.ChartBar
	default:
		return models.ChartLine
	}
}

// scopeLabel is a short chart title such as "gst amount trend, 2025-01-01 to
// 2025-01-31".
func scopeLabel(p models.Plan) string {
	metric := "amount"
	if p.Metric != "" {
		metric = strings.ReplaceAll(p.Metric, "_", " ")
	}
	var what string
	switch p.Intent {
	case models.IntentTrend:
		what = metric + " trend"
	case models.IntentBreakdown:
		what = metric + " breakdown"
		if len(p.GroupBy) > 0 {
			what += " by " + p.GroupBy[0]
		}
	case models.IntentCompare:
		if len(p.CompareRanges) >= 2 {
			return fmt.Sprintf("%s, %s vs %s", metric, p.CompareRanges[0], p.CompareRanges[1])
		}
		what = metric + " comparison"
	default:
		what = metric
	}
	if p.DateRange.IsZero() {
		return what
	}
	return fmt.Sprintf("%s, %s", what, p.DateRange)
}
