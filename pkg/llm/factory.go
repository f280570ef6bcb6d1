package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/config"
)

// NewFromConfig builds the configured client. It returns (nil, nil) when no
// provider is configured; callers then run on their deterministic fallbacks.
func NewFromConfig(cfg config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	if cfg.Provider == config.ProviderNone || cfg.Provider == "" {
		return nil, nil
	}
	if !cfg.IsAvailable() {
		return nil, fmt.Errorf("llm provider %q is missing endpoint, model or api key", cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewClient(&Config{
			Endpoint:       cfg.Endpoint,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			APIKey:         cfg.APIKey,
			MaxTokens:      cfg.MaxTokens,
		}, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(&AnthropicConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewEmbeddingClient builds a client for similarity retrieval, or (nil, nil)
// when the configuration cannot serve embeddings.
func NewEmbeddingClient(cfg config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	if !cfg.EmbeddingsAvailable() {
		return nil, nil
	}
	return NewClient(&Config{
		Endpoint:       cfg.Endpoint,
		Model:          cfg.Model,
		EmbeddingModel: cfg.EmbeddingModel,
		APIKey:         cfg.APIKey,
	}, logger)
}
