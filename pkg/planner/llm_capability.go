package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/llm"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/prompts"
)

// defaultLLMConfidence is used when the model leaves confidence out.
const defaultLLMConfidence = 0.8

// LLMCapability reads queries with a language model.
type LLMCapability struct {
	client llm.LLMClient
	logger *zap.Logger
}

var _ Capability = (*LLMCapability)(nil)

// NewLLMCapability wraps client as a planning capability.
func NewLLMCapability(client llm.LLMClient, logger *zap.Logger) *LLMCapability {
	return &LLMCapability{
		client: client,
		logger: logger.Named("planner-llm"),
	}
}

// Name identifies the capability in diagnostics.
func (c *LLMCapability) Name() string {
	return models.PlanSourceLLM
}

// planResponse is the JSON shape the plan prompt asks for.
type planResponse struct {
	Intent         string     `json:"intent"`
	Confidence     *float64   `json:"confidence"`
	Dates          []string   `json:"dates"`
	Compare        [][]string `json:"compare"`
	DateFilterType string     `json:"date_filter_type"`
	ClientTag      *string    `json:"client_tag"`
	Metric         *string    `json:"metric"`
	RiskFlag       bool       `json:"risk_flag"`
	NeedsChart     bool       `json:"needs_chart"`
	ChartType      *string    `json:"chart_type"`
	ChartScope     *string    `json:"chart_scope"`
}

// Plan asks the model once. Any failure is returned; the caller decides
// whether to fall back.
func (c *LLMCapability) Plan(ctx context.Context, req Request) (models.Plan, error) {
	var concepts []string
	if req.Resolution != nil {
		concepts = req.Resolution.Mentioned
	}
	prompt := prompts.BuildPlanPrompt(prompts.PlanContext{
		Query:         req.Query,
		ReferenceDate: req.ReferenceDate,
		Columns:       req.Columns,
		Concepts:      concepts,
		KnownTags:     req.KnownTags,
	})

	result, err := c.client.GenerateResponse(ctx, prompt, prompts.BuildPlanSystemMessage(), 0.0, false)
	if err != nil {
		return models.Plan{}, fmt.Errorf("plan query: %w", err)
	}

	resp, err := llm.ParseJSONResponse[planResponse](result.Content)
	if err != nil {
		c.logger.Warn("Unparseable plan response",
			zap.String("model", c.client.GetModel()),
			zap.Error(err))
		return models.Plan{}, fmt.Errorf("parse plan: %w", err)
	}

	c.logger.Debug("LLM plan",
		zap.String("intent", resp.Intent),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens))

	return resp.toPlan(), nil
}

func (r planResponse) toPlan() models.Plan {
	p := models.Plan{
		Intent:         models.ParseIntent(strings.ToLower(strings.TrimSpace(r.Intent))),
		Confidence:     defaultLLMConfidence,
		DateRange:      rangeOf(r.Dates),
		DateFilterType: models.DateFilterEvent,
		RiskFlag:       r.RiskFlag,
		Source:         models.PlanSourceLLM,
	}
	if r.Confidence != nil {
		p.Confidence = *r.Confidence
	}
	if strings.EqualFold(strings.TrimSpace(r.DateFilterType), string(models.DateFilterUpload)) {
		p.DateFilterType = models.DateFilterUpload
	}
	for _, pair := range r.Compare {
		if rng := rangeOf(pair); !rng.IsZero() {
			p.CompareRanges = append(p.CompareRanges, rng)
		}
	}
	if r.ClientTag != nil {
		p.Tag = strings.TrimSpace(*r.ClientTag)
	}
	if r.Metric != nil {
		p.Metric = strings.TrimSpace(*r.Metric)
	}
	p.Chart.NeedsChart = r.NeedsChart
	if r.ChartType != nil {
		p.Chart.Type = strings.ToLower(strings.TrimSpace(*r.ChartType))
	}
	if r.ChartScope != nil {
		p.Chart.ScopeLabel = strings.TrimSpace(*r.ChartScope)
	}
	return p
}

// rangeOf spans the parseable dates in values; unparseable ones are dropped.
func rangeOf(values []string) models.DateRange {
	var rng models.DateRange
	for _, v := range values {
		t, ok := ParseDate(v)
		if !ok {
			continue
		}
		rng = rng.Union(models.SingleDay(t))
	}
	return rng
}

// referenceOrNow keeps planning deterministic when a dataset supplies a
// reference date and sensible when it does not.
func referenceOrNow(ref time.Time) time.Time {
	if ref.IsZero() {
		return models.DateOf(time.Now().UTC())
	}
	return models.DateOf(ref)
}
