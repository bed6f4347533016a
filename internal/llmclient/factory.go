// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
)

// NewClient builds the tier router from the router configuration. Each model
// alias gets one provider client wrapped in a Guard; tiers that point at the
// same alias share it, along with its circuit breaker.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, rc config.ResilienceConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if cfg.DefaultFastModel == "" {
		return nil, &config.ConfigurationError{Field: "llm.default_fast_model", Reason: "DefaultFastModel is not specified in LLMRouterConfig"}
	}
	if cfg.DefaultPowerfulModel == "" {
		return nil, &config.ConfigurationError{Field: "llm.default_powerful_model", Reason: "DefaultPowerfulModel is not specified in LLMRouterConfig"}
	}

	built := make(map[string]schemas.LLMClient, 2)
	closeAll := func() {
		for _, c := range built {
			_ = c.Close()
		}
	}

	build := func(tierName, alias string) (schemas.LLMClient, error) {
		if c, ok := built[alias]; ok {
			return c, nil
		}
		modelCfg, ok := cfg.Models[alias]
		if !ok {
			return nil, &config.ConfigurationError{
				Field:  "llm.models",
				Reason: fmt.Sprintf("%s '%s' not found in the models map", tierName, alias),
			}
		}
		client, err := newProviderClient(modelCfg, rc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s tier LLM client (Model: %s): %w", tierName, alias, err)
		}
		guarded := NewGuard(alias, client, rc, logger)
		built[alias] = guarded
		return guarded, nil
	}

	fast, err := build("DefaultFastModel", cfg.DefaultFastModel)
	if err != nil {
		closeAll()
		return nil, err
	}
	powerful, err := build("DefaultPowerfulModel", cfg.DefaultPowerfulModel)
	if err != nil {
		closeAll()
		return nil, err
	}

	if ctx.Err() != nil {
		closeAll()
		return nil, ctx.Err()
	}
	return NewLLMRouter(logger, fast, powerful)
}

// newProviderClient selects the concrete client for a model's provider.
func newProviderClient(cfg config.LLMModelConfig, rc config.ResilienceConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, rc, logger)
	case config.ProviderGemini:
		return NewGeminiClient(cfg, rc, logger)
	case "":
		return nil, fmt.Errorf("LLM provider is not specified in the model configuration")
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderOpenAI, config.ProviderGemini)
	}
}

// newBackoffFactory turns the resilience settings into the retry policy used
// by the provider clients. MaxRetries counts retries, not attempts.
func newBackoffFactory(rc config.ResilienceConfig) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		if rc.InitialInterval > 0 {
			b.InitialInterval = rc.InitialInterval
		}
		if rc.MaxInterval > 0 {
			b.MaxInterval = rc.MaxInterval
		}
		if rc.MaxElapsedTime > 0 {
			b.MaxElapsedTime = rc.MaxElapsedTime
		}
		if rc.MaxRetries < 0 {
			return b
		}
		return backoff.WithMaxRetries(b, uint64(rc.MaxRetries))
	}
}
