package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/llm"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// Planner picks its primary capability at construction and falls back to
// the heuristic whenever the primary errors or its circuit is open.
type Planner struct {
	primary   Capability // nil when no language model is configured
	heuristic Capability
	breaker   *llm.CircuitBreaker
	logger    *zap.Logger
}

// New creates a Planner. A nil client gives a heuristic-only planner; a nil
// breaker gets the default configuration.
func New(client llm.LLMClient, breaker *llm.CircuitBreaker, logger *zap.Logger) *Planner {
	p := &Planner{
		heuristic: HeuristicCapability{},
		logger:    logger.Named("planner"),
	}
	if client != nil {
		p.primary = NewLLMCapability(client, logger)
		if breaker == nil {
			breaker = llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
		}
		p.breaker = breaker
	}
	return p
}

// NewWithCapability creates a Planner around an arbitrary primary capability.
func NewWithCapability(primary Capability, breaker *llm.CircuitBreaker, logger *zap.Logger) *Planner {
	if breaker == nil {
		breaker = llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
	}
	return &Planner{
		primary:   primary,
		heuristic: HeuristicCapability{},
		breaker:   breaker,
		logger:    logger.Named("planner"),
	}
}

// Plan reads the request into a finalized plan. It does not fail: a primary
// failure is logged and the heuristic answers instead.
func (p *Planner) Plan(ctx context.Context, req Request) models.Plan {
	req.ReferenceDate = referenceOrNow(req.ReferenceDate)

	raw, ok := p.tryPrimary(ctx, req)
	if !ok {
		raw, _ = p.heuristic.Plan(ctx, req)
	}
	plan := finalize(raw, req)

	p.logger.Debug("Planned query",
		zap.String("source", plan.Source),
		zap.String("intent", string(plan.Intent)),
		zap.Float64("confidence", plan.Confidence),
		zap.String("date_range", plan.DateRange.String()),
		zap.String("date_filter_type", string(plan.DateFilterType)),
		zap.String("metric", plan.Metric))
	return plan
}

func (p *Planner) tryPrimary(ctx context.Context, req Request) (models.Plan, bool) {
	if p.primary == nil {
		return models.Plan{}, false
	}
	var plan models.Plan
	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		plan, err = p.primary.Plan(ctx, req)
		return err
	})
	if err != nil {
		if llm.GetErrorType(err) == llm.ErrorTypeUnavailable {
			p.logger.Debug("Planner circuit open, using heuristic", zap.Error(err))
		} else {
			p.logger.Warn("Primary planner failed, using heuristic",
				zap.String("capability", p.primary.Name()),
				zap.String("error_type", string(llm.GetErrorType(err))),
				zap.Error(err))
		}
		return models.Plan{}, false
	}
	return plan, true
}
