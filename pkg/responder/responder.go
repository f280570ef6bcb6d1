// Package responder turns a computed analysis result into the user-facing
// message. A configured language model may phrase it; the deterministic
// template is used whenever the model is absent, failing or its circuit is
// open. Neither path computes figures of its own.
package responder

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/llm"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/prompts"
)

// Phrasing sources reported in diagnostics.
const (
	SourceLLM      = "llm"
	SourceTemplate = "template"
)

const phrasingTemperature = 0.2

// Input is everything the phrasing may draw on.
type Input struct {
	Question string
	Plan     models.Plan
	Result   *models.AnalysisResult // full precision; rounded here
	Prefix   string                 // reframe notice the message must open with
	Related  []string               // retrieved row documents, wording only
}

// Phrased is the final message and how it was produced.
type Phrased struct {
	Message string
	Source  string
}

// Responder is safe for concurrent use.
type Responder struct {
	client  llm.LLMClient // nil when no language model is configured
	breaker *llm.CircuitBreaker
	logger  *zap.Logger
}

// New creates a Responder. A nil client gives a template-only responder; a
// nil breaker gets the default configuration.
func New(client llm.LLMClient, breaker *llm.CircuitBreaker, logger *zap.Logger) *Responder {
	if breaker == nil {
		breaker = llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
	}
	return &Responder{
		client:  client,
		breaker: breaker,
		logger:  logger.Named("responder"),
	}
}

// Phrase renders in.Result. It does not fail.
func (r *Responder) Phrase(ctx context.Context, in Input) Phrased {
	if text, ok := r.tryLLM(ctx, in); ok {
		return Phrased{Message: withPrefix(in.Prefix, text), Source: SourceLLM}
	}
	return Phrased{Message: withPrefix(in.Prefix, Template(in.Plan, in.Result)), Source: SourceTemplate}
}

func (r *Responder) tryLLM(ctx context.Context, in Input) (string, bool) {
	if r.client == nil || in.Result == nil {
		return "", false
	}

	summary, err := json.Marshal(analyst.Present(in.Result))
	if err != nil {
		r.logger.Error("Failed to serialize analysis result", zap.Error(err))
		return "", false
	}
	prompt := prompts.BuildAnswerPrompt(prompts.AnswerContext{
		Question: in.Question,
		Scope:    ScopeContext(in.Plan),
		Summary:  string(summary),
		Prefix:   in.Prefix,
		Related:  in.Related,
	})

	var resp *llm.GenerateResponseResult
	err = r.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = r.client.GenerateResponse(ctx, prompt, prompts.BuildAnswerSystemMessage(), phrasingTemperature, false)
		return err
	})
	if err != nil {
		if llm.GetErrorType(err) == llm.ErrorTypeUnavailable {
			r.logger.Debug("Phrasing circuit open, using template", zap.Error(err))
		} else {
			r.logger.Warn("Answer phrasing failed, using template",
				zap.String("error_type", string(llm.GetErrorType(err))),
				zap.Error(err))
		}
		return "", false
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		r.logger.Warn("Language model returned an empty answer, using template")
		return "", false
	}
	r.logger.Debug("Phrased answer",
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens))
	return text, true
}

// withPrefix opens text with prefix unless the model already did.
func withPrefix(prefix, text string) string {
	if prefix == "" || strings.HasPrefix(text, prefix) {
		return text
	}
	return prefix + " " + text
}
