package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/sast-agent/internal/config"
)

func setupOpenAIClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	loggerCore, observedLogs := observer.New(zap.InfoLevel)

	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOpenAI
	cfg.Model = "gpt-4-turbo"
	cfg.Endpoint = server.URL

	client, err := NewOpenAIClient(cfg, testResilience(), zap.New(loggerCore))
	require.NoError(t, err)
	client.backoffFactory = fastBackoff
	return client, observedLogs
}

func openAIText(content, finishReason string) OpenAIResponsePayload {
	return OpenAIResponsePayload{
		Choices: []OpenAIChoice{{Message: OpenAIMessage{Role: "assistant", Content: content}, FinishReason: finishReason}},
		Usage:   OpenAIUsage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	}
}

func TestNewOpenAIClient(t *testing.T) {
	t.Run("default endpoint", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Endpoint = ""
		client, err := NewOpenAIClient(cfg, testResilience(), setupTestLogger(t))
		require.NoError(t, err)
		assert.Equal(t, defaultOpenAIEndpoint, client.endpoint)
	})

	t.Run("missing key", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.APIKey = ""
		client, err := NewOpenAIClient(cfg, testResilience(), setupTestLogger(t))
		assert.Nil(t, client)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OpenAI API key is required")
	})
}

func TestOpenAIGenerate_Success(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var payload OpenAIRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "gpt-4-turbo", payload.Model)
		assert.Equal(t, 0.2, payload.Temperature)
		require.Len(t, payload.Messages, 2)
		assert.Equal(t, "system", payload.Messages[0].Role)
		assert.Equal(t, "user", payload.Messages[1].Role)
		assert.Equal(t, "User query.", payload.Messages[1].Content)
		assert.Nil(t, payload.ResponseFormat)

		json.NewEncoder(w).Encode(openAIText("VALID - user input reaches the query.", "stop"))
	}

	client, observedLogs := setupOpenAIClient(t, handler)
	req := createTestRequest()
	req.Options.Temperature = 0.2

	response, err := client.Generate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "VALID - user input reaches the query.", response)
	require.Equal(t, 1, observedLogs.Len())
	assert.Equal(t, "LLM generation complete (OpenAI)", observedLogs.All()[0].Message)
	assert.Equal(t, int64(15), observedLogs.All()[0].ContextMap()["total_tokens"])
}

func TestOpenAIBuildRequestPayload(t *testing.T) {
	client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {})

	req := createTestRequest()
	req.SystemPrompt = ""
	req.Options.ForceJSONFormat = true

	payload := client.buildRequestPayload(req)

	require.Len(t, payload.Messages, 1, "no system message without a system prompt")
	assert.Equal(t, "user", payload.Messages[0].Role)
	require.NotNil(t, payload.ResponseFormat)
	assert.Equal(t, "json_object", payload.ResponseFormat.Type)
}

func TestOpenAIGenerate_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantAttempts int32
		message      string
	}{
		{"unauthorized is permanent", http.StatusUnauthorized, `{"error":"bad key"}`, 1, "status 401"},
		{"no choices", http.StatusOK, `{"choices":[]}`, 1, "response contained no choices"},
		{"content filter", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":""},"finish_reason":"content_filter"}]}`, 1, "content filter"},
		{"malformed body", http.StatusOK, `not json`, 1, "failed to decode response payload"},
		{"server errors exhaust retries", http.StatusBadGateway, `upstream`, 4, "status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			client.backoffFactory = newBackoffFactory(config.ResilienceConfig{
				MaxRetries:      3,
				InitialInterval: time.Millisecond,
				MaxInterval:     2 * time.Millisecond,
			})

			response, err := client.Generate(context.Background(), createTestRequest())

			assert.Empty(t, response)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			var rse *RemoteServiceError
			require.True(t, errors.As(err, &rse))
			assert.Equal(t, "openai", rse.Provider)
			assert.Equal(t, tt.wantAttempts, atomic.LoadInt32(&attempts))
		})
	}
}

func TestOpenAIGenerate_RecoversFromRateLimit(t *testing.T) {
	var attempts int32
	client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(openAIText("FALSE POSITIVE: constant input", "stop"))
	})

	response, err := client.Generate(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, "FALSE POSITIVE: constant input", response)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}
