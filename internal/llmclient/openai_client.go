// internal/llmclient/openai_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient implements schemas.LLMClient for OpenAI-compatible
// chat-completions APIs (OpenAI, vLLM, LM Studio, LocalAI, ...).
type OpenAIClient struct {
	apiKey         string
	endpoint       string
	httpClient     *http.Client
	logger         *zap.Logger
	config         config.LLMModelConfig
	backoffFactory func() backoff.BackOff
}

// -- Chat Completions Request/Response Structures --

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIResponseFormat struct {
	Type string `json:"type"`
}

type OpenAIRequestPayload struct {
	Model          string                `json:"model"`
	Messages       []OpenAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	TopP           float32               `json:"top_p,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *OpenAIResponseFormat `json:"response_format,omitempty"`
}

type OpenAIChoice struct {
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIResponsePayload struct {
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

// NewOpenAIClient initializes the client. The credential is mandatory.
func NewOpenAIClient(cfg config.LLMModelConfig, rc config.ResilienceConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}

	return &OpenAIClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger:         logger.Named("llm_client.openai"),
		backoffFactory: newBackoffFactory(rc),
	}, nil
}

// Generate sends the prompts to the chat-completions endpoint and returns the
// content of the first choice, retrying transient failures.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	body, err := json.Marshal(c.buildRequestPayload(req))
	if err != nil {
		return "", &RemoteServiceError{Provider: "openai", Err: fmt.Errorf("failed to marshal request payload: %w", err)}
	}

	var responseContent string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(&RemoteServiceError{Provider: "openai", Err: fmt.Errorf("failed to create HTTP request: %w", err)})
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)
		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return &RemoteServiceError{Provider: "openai", Err: fmt.Errorf("failed to execute HTTP request: %w", err)}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &RemoteServiceError{Provider: "openai", StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var payload OpenAIResponsePayload
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(&RemoteServiceError{Provider: "openai", StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response payload: %w", err)})
		}
		if len(payload.Choices) == 0 {
			return backoff.Permanent(&RemoteServiceError{Provider: "openai", StatusCode: resp.StatusCode, Err: errors.New("response contained no choices")})
		}

		choice := payload.Choices[0]
		if choice.Message.Content == "" {
			if choice.FinishReason == "content_filter" {
				return backoff.Permanent(&RemoteServiceError{Provider: "openai", StatusCode: resp.StatusCode, Err: errors.New("response blocked by content filter")})
			}
			return &RemoteServiceError{Provider: "openai", StatusCode: resp.StatusCode, Err: fmt.Errorf("empty completion (finish_reason: %s)", choice.FinishReason)}
		}

		c.logger.Info("LLM generation complete (OpenAI)",
			zap.String("model", c.config.Model),
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", payload.Usage.PromptTokens),
			zap.Int("completion_tokens", payload.Usage.CompletionTokens),
			zap.Int("total_tokens", payload.Usage.TotalTokens),
		)

		responseContent = choice.Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", asRemoteServiceError("openai", err)
	}
	return responseContent, nil
}

func (c *OpenAIClient) buildRequestPayload(req schemas.GenerationRequest) OpenAIRequestPayload {
	messages := make([]OpenAIMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, OpenAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, OpenAIMessage{Role: "user", Content: req.UserPrompt})

	payload := OpenAIRequestPayload{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: req.Options.Temperature,
		TopP:        c.config.TopP,
		MaxTokens:   c.config.MaxTokens,
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &OpenAIResponseFormat{Type: "json_object"}
	}
	return payload
}

func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("OpenAI API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := &RemoteServiceError{Provider: "openai", StatusCode: statusCode, Err: fmt.Errorf("API error: status %d: %s", statusCode, string(body))}
	if isTransientStatus(statusCode) {
		return err
	}
	return backoff.Permanent(err)
}

// Close releases idle connections.
func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
