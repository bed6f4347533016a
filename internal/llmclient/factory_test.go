package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
)

// unwrapGuarded digs the provider client out of the router for white box checks.
func unwrapGuarded(t *testing.T, client schemas.LLMClient, tier schemas.ModelTier) schemas.LLMClient {
	t.Helper()
	router, ok := client.(*LLMRouter)
	require.True(t, ok, "The created client should be of type *LLMRouter")
	guard, ok := router.clients[tier].(*Guard)
	require.True(t, ok, "tier clients should be wrapped in a Guard")
	return guard.client
}

func TestNewClient_Success_RouterInitialization(t *testing.T) {
	logger := setupTestLogger(t)

	fastConfig := getValidLLMConfig()
	fastConfig.Model = "gemini-flash"
	fastConfig.APIKey = "key-fast"

	powerfulConfig := getValidLLMConfig()
	powerfulConfig.Provider = config.ProviderOpenAI
	powerfulConfig.Model = "gpt-4-turbo"
	powerfulConfig.APIKey = "key-powerful"

	cfg := config.LLMRouterConfig{
		DefaultFastModel:     "FastAlias",
		DefaultPowerfulModel: "PowerfulAlias",
		Models: map[string]config.LLMModelConfig{
			"FastAlias":     fastConfig,
			"PowerfulAlias": powerfulConfig,
		},
	}

	client, err := NewClient(context.Background(), cfg, testResilience(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	fast, ok := unwrapGuarded(t, client, schemas.TierFast).(*GeminiClient)
	require.True(t, ok, "Fast client should be an instance of *GeminiClient")
	assert.Equal(t, "gemini-flash", fast.config.Model)
	assert.Equal(t, "key-fast", fast.apiKey)

	powerful, ok := unwrapGuarded(t, client, schemas.TierPowerful).(*OpenAIClient)
	require.True(t, ok, "Powerful client should be an instance of *OpenAIClient")
	assert.Equal(t, "gpt-4-turbo", powerful.config.Model)
	assert.Equal(t, "key-powerful", powerful.apiKey)
}

func TestNewClient_SharedAlias(t *testing.T) {
	cfg := config.NewDefaultConfig().LLM()
	m := cfg.Models[config.DefaultModelName]
	m.APIKey = "sk-test"
	cfg.Models = map[string]config.LLMModelConfig{config.DefaultModelName: m}

	client, err := NewClient(context.Background(), cfg, testResilience(), setupTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	router := client.(*LLMRouter)
	assert.Same(t, router.clients[schemas.TierFast], router.clients[schemas.TierPowerful],
		"tiers that name the same model share one guarded client")
}

func TestNewClient_Failure_MissingConfiguration(t *testing.T) {
	logger := setupTestLogger(t)
	validConfig := getValidLLMConfig()
	const validName = "ValidModel"

	tests := []struct {
		name          string
		routerConfig  config.LLMRouterConfig
		expectedError string
	}{
		{
			name: "Missing DefaultFastModel Name",
			routerConfig: config.LLMRouterConfig{
				DefaultPowerfulModel: validName,
				Models:               map[string]config.LLMModelConfig{validName: validConfig},
			},
			expectedError: "DefaultFastModel is not specified in LLMRouterConfig",
		},
		{
			name: "Missing DefaultPowerfulModel Name",
			routerConfig: config.LLMRouterConfig{
				DefaultFastModel: validName,
				Models:           map[string]config.LLMModelConfig{validName: validConfig},
			},
			expectedError: "DefaultPowerfulModel is not specified in LLMRouterConfig",
		},
		{
			name: "DefaultFastModel Not Found in Map",
			routerConfig: config.LLMRouterConfig{
				DefaultFastModel:     "MissingModel",
				DefaultPowerfulModel: validName,
				Models:               map[string]config.LLMModelConfig{validName: validConfig},
			},
			expectedError: "DefaultFastModel 'MissingModel' not found in the models map",
		},
		{
			name: "DefaultPowerfulModel Not Found in Map",
			routerConfig: config.LLMRouterConfig{
				DefaultFastModel:     validName,
				DefaultPowerfulModel: "MissingModel",
				Models:               map[string]config.LLMModelConfig{validName: validConfig},
			},
			expectedError: "DefaultPowerfulModel 'MissingModel' not found in the models map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tt.routerConfig, testResilience(), logger)
			assert.Nil(t, client)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)

			var cfgErr *config.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "configuration problems surface as ConfigurationError")
		})
	}
}

func TestNewClient_Failure_ProviderInitializationError(t *testing.T) {
	invalidConfig := getValidLLMConfig()
	invalidConfig.APIKey = ""

	cfg := config.LLMRouterConfig{
		DefaultFastModel:     "InvalidConfig",
		DefaultPowerfulModel: "ValidConfig",
		Models: map[string]config.LLMModelConfig{
			"InvalidConfig": invalidConfig,
			"ValidConfig":   getValidLLMConfig(),
		},
	}

	client, err := NewClient(context.Background(), cfg, testResilience(), setupTestLogger(t))
	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize DefaultFastModel tier LLM client (Model: InvalidConfig):")
	assert.Contains(t, err.Error(), "Gemini API key is required")
}

func TestNewClient_Failure_Provider(t *testing.T) {
	tests := []struct {
		name     string
		provider config.LLMProvider
		message  string
	}{
		{"unsupported", "unsupported-provider-xyz", "unknown or unsupported LLM provider configured: 'unsupported-provider-xyz'"},
		{"missing", "", "LLM provider is not specified in the model configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := getValidLLMConfig()
			bad.Provider = tt.provider
			cfg := config.LLMRouterConfig{
				DefaultFastModel:     "Valid",
				DefaultPowerfulModel: "Bad",
				Models: map[string]config.LLMModelConfig{
					"Valid": getValidLLMConfig(),
					"Bad":   bad,
				},
			}

			client, err := NewClient(context.Background(), cfg, testResilience(), setupTestLogger(t))
			assert.Nil(t, client)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to initialize DefaultPowerfulModel tier LLM client (Model: Bad):")
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNewBackoffFactory(t *testing.T) {
	rc := config.ResilienceConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  time.Minute,
	}

	b := newBackoffFactory(rc)()
	assert.NotEqual(t, backoff.Stop, b.NextBackOff())
	assert.NotEqual(t, backoff.Stop, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff(), "MaxRetries bounds the number of retries")

	b2 := newBackoffFactory(rc)()
	assert.NotEqual(t, backoff.Stop, b2.NextBackOff(), "each call yields a fresh policy")
}
