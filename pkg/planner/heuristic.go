package planner

import (
	"context"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/router"
)

// Confidence levels produced by the heuristic.
const (
	confidenceSchema     = 0.95
	confidenceNoSignal   = 0.3
	confidenceVague      = 0.5
	confidenceOneSignal  = 0.6
	confidenceTwoSignals = 0.8
	confidenceAllSignals = 0.9
)

// intentKeywords are checked in order; the first match decides.
var intentKeywords = []struct {
	intent  models.Intent
	pattern *regexp.Regexp
}{
	{models.IntentSummarize, regexp.MustCompile(`\bsummari[sz]e\b|\bsummary\s+of\b|\boverview\b|\ball\s+details\b`)},
	{models.IntentExplain, regexp.MustCompile(`\bwhy\b|\bexplain\b|\binsights?\b`)},
	{models.IntentTrend, regexp.MustCompile(`\btrends?\b|\bover\s+time\b|\bdaily\b|\bmonthly\b|\bday\s+by\s+day\b|\bmonth\s+(?:by|on|over)\s+month\b`)},
	{models.IntentCompare, regexp.MustCompile(`\bcompare[sd]?\b|\bcomparison\b|\bvs\b|\bversus\b`)},
	{models.IntentBreakdown, regexp.MustCompile(`\bbreak\s*down\b|\bsplit\b|\bdistribution\b|\bwise\b`)},
}

// HeuristicCapability reads queries with keyword and pattern rules.
type HeuristicCapability struct{}

var _ Capability = HeuristicCapability{}

// Name identifies the capability in diagnostics.
func (HeuristicCapability) Name() string {
	return models.PlanSourceHeuristic
}

// Plan never fails.
func (HeuristicCapability) Plan(_ context.Context, req Request) (models.Plan, error) {
	q := strings.ToLower(strings.TrimSpace(req.Query))
	plan := models.Plan{
		Intent:         models.IntentOther,
		DateFilterType: models.DateFilterEvent,
		Source:         models.PlanSourceHeuristic,
	}
	if q == "" {
		plan.Confidence = confidenceNoSignal
		return plan, nil
	}

	if router.IsSchemaQuery(q) {
		plan.Intent = models.IntentSchema
		plan.Confidence = confidenceSchema
		return plan, nil
	}

	keyword := false
	for _, k := range intentKeywords {
		if k.pattern.MatchString(q) {
			plan.Intent = k.intent
			keyword = true
			break
		}
	}

	res := req.Resolution
	grouped := res != nil && len(res.GroupBy) > 0
	mentioned := res != nil && len(res.Mentioned) > 0
	dated := len(ExtractDates(q, req.ReferenceDate)) > 0
	tagged := matchKnownTag(q, req.KnownTags) != ""

	if !keyword {
		switch {
		case grouped:
			plan.Intent = models.IntentBreakdown
		case mentioned || dated || tagged:
			plan.Intent = models.IntentSummary
		}
	}

	signals := 0
	for _, s := range []bool{keyword || grouped, mentioned || tagged, dated} {
		if s {
			signals++
		}
	}
	switch signals {
	case 0:
		plan.Confidence = confidenceNoSignal
		if router.IsVagueQuery(q) {
			plan.Confidence = confidenceVague
		}
	case 1:
		plan.Confidence = confidenceOneSignal
	case 2:
		plan.Confidence = confidenceTwoSignals
	default:
		plan.Confidence = confidenceAllSignals
	}
	return plan, nil
}
