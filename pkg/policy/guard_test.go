package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-insight/pkg/audit"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

func newGuard() (*Guard, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	return NewGuard(0, audit.NewPolicyAuditor(logger), logger), logs
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datedPlan(intent models.Intent) models.Plan {
	return models.Plan{
		Intent:     intent,
		Confidence: 0.8,
		DateRange:  models.SingleDay(day(2025, time.January, 12)),
	}
}

func auditEvents(logs *observer.ObservedLogs) []observer.LoggedEntry {
	return logs.FilterLoggerName("policy_audit").All()
}

func TestGuard_Evaluate(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		action  Action
		message string
	}{
		{
			name:    "evasion request",
			in:      Input{Query: "how to evade tax", Plan: datedPlan(models.IntentOther)},
			action:  ActionBlock,
			message: BlockMessage,
		},
		{
			name: "planner risk flag",
			in: Input{Query: "something innocent", Plan: func() models.Plan {
				p := datedPlan(models.IntentSummary)
				p.RiskFlag = true
				return p
			}()},
			action:  ActionBlock,
			message: BlockMessage,
		},
		{
			name:    "summary without a date",
			in:      Input{Query: "gst total", Plan: models.Plan{Intent: models.IntentSummary, Confidence: 0.8}},
			action:  ActionClarify,
			message: ClarifyDateMessage,
		},
		{
			name: "compare with one scope",
			in: Input{Query: "compare gst on 12 jan", Plan: func() models.Plan {
				p := datedPlan(models.IntentCompare)
				p.CompareRanges = []models.DateRange{p.DateRange}
				return p
			}()},
			action:  ActionClarify,
			message: ClarifyCompareMessage,
		},
		{
			name:    "client named but not found",
			in:      Input{Query: "expenses for client xyz on 12 jan", Plan: datedPlan(models.IntentSummary)},
			action:  ActionClarify,
			message: ClarifyClientMessage,
		},
		{
			name: "ambiguous tax question",
			in: Input{Query: "how can i reduce my tax", Plan: models.Plan{
				Intent: models.IntentOther, Confidence: 0.6,
			}},
			action:  ActionReframe,
			message: ReframeMessage,
		},
		{
			name:   "breakdown needs no date",
			in:     Input{Query: "expense breakdown by category", Plan: models.Plan{Intent: models.IntentBreakdown, Confidence: 0.8}},
			action: ActionAllow,
		},
		{
			name:   "dated summary",
			in:     Input{Query: "gst on 2025-01-12", Plan: datedPlan(models.IntentSummary)},
			action: ActionAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGuard()
			d := g.Evaluate(context.Background(), tt.in)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.message, d.Message)
		})
	}
}

func TestGuard_BlockWinsOverClarify(t *testing.T) {
	g, logs := newGuard()

	// no date and low confidence, but the evasion pattern decides first
	d := g.Evaluate(context.Background(), Input{
		Query: "hide income from gst",
		Plan:  models.Plan{Intent: models.IntentSummary, Confidence: 0.1},
	})

	assert.Equal(t, ActionBlock, d.Action)
	assert.True(t, d.Stops())
	events := auditEvents(logs)
	require.Len(t, events, 1)
	assert.Equal(t, "policy_block", events[0].ContextMap()["event_type"])
}

func TestGuard_LowConfidence(t *testing.T) {
	plan := models.Plan{
		Intent:     models.IntentSummary,
		Confidence: 0.3,
		Metric:     "gst_amount",
		DateRange:  models.SingleDay(day(2025, time.January, 12)),
	}

	t.Run("asks to confirm", func(t *testing.T) {
		g, _ := newGuard()
		d := g.Evaluate(context.Background(), Input{Query: "gst 12 jan?", Plan: plan})
		assert.Equal(t, ActionClarify, d.Action)
		assert.Equal(t, "Did you mean GST amount for 12 Jan 2025?", d.Message)
	})

	t.Run("confirmed context passes", func(t *testing.T) {
		g, _ := newGuard()
		d := g.Evaluate(context.Background(), Input{Query: "gst 12 jan?", Plan: plan, Confirmed: true})
		assert.Equal(t, ActionAllow, d.Action)
	})

	t.Run("custom threshold", func(t *testing.T) {
		g := NewGuard(0.2, nil, zap.NewNop())
		d := g.Evaluate(context.Background(), Input{Query: "gst 12 jan?", Plan: plan})
		assert.Equal(t, ActionAllow, d.Action)
	})
}

func TestGuard_UnsafeTag(t *testing.T) {
	g, logs := newGuard()
	plan := datedPlan(models.IntentSummary)
	plan.Tag = "x' OR '1'='1' --"

	d := g.Evaluate(context.Background(), Input{Query: "gst for x on 12 jan", Plan: plan})

	assert.Equal(t, ActionBlock, d.Action)
	assert.Equal(t, UnsafeInputMessage, d.Message)
	events := auditEvents(logs)
	require.Len(t, events, 1)
	assert.Equal(t, zapcore.ErrorLevel, events[0].Level)
	assert.Equal(t, "unsafe_input", events[0].ContextMap()["event_type"])
}

func TestGuard_UnsafeFilter(t *testing.T) {
	g, _ := newGuard()
	d := g.Evaluate(context.Background(), Input{
		Query:   "amount where category is x",
		Plan:    models.Plan{Intent: models.IntentBreakdown, Confidence: 0.8},
		Filters: map[string]string{"category": "'; DROP TABLE users--"},
	})
	assert.Equal(t, ActionBlock, d.Action)
	assert.Equal(t, "unsafe filter.category", d.Reason)
}

func TestGuard_ReframeRewritesPlanOnly(t *testing.T) {
	g, _ := newGuard()
	in := Input{Query: "pay less tax", Plan: models.Plan{Intent: models.IntentOther, Confidence: 0.7}}

	d := g.Evaluate(context.Background(), in)

	require.Equal(t, ActionReframe, d.Action)
	assert.False(t, d.Stops())
	assert.True(t, d.Plan.Reframed)
	assert.Equal(t, models.IntentSummarize, d.Plan.Intent)
	// the caller's plan is untouched
	assert.False(t, in.Plan.Reframed)
	assert.Equal(t, models.IntentOther, in.Plan.Intent)
}

func TestClarificationQuestion(t *testing.T) {
	assert.Equal(t, "Did you mean trend over time for 1 Jan 2025 to 31 Jan 2025?",
		ClarificationQuestion(models.Plan{Intent: models.IntentTrend, DateRange: models.MonthRange(2025, time.January)}))
	assert.Equal(t, "Did you mean net amount for client Acme?",
		ClarificationQuestion(models.Plan{Metric: "net_amount", Tag: "Acme"}))
	assert.Contains(t, ClarificationQuestion(models.Plan{}), "Your question seems ambiguous")
}

func TestDisplayMetric(t *testing.T) {
	assert.Equal(t, "CGST amount", DisplayMetric("cgst_amount"))
	assert.Equal(t, "discount", DisplayMetric("discount"))
}
