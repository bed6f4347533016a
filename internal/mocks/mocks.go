// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) LLM() config.LLMRouterConfig {
	args := m.Called()
	return args.Get(0).(config.LLMRouterConfig)
}

func (m *MockConfig) Resilience() config.ResilienceConfig {
	args := m.Called()
	return args.Get(0).(config.ResilienceConfig)
}

func (m *MockConfig) Triage() config.TriageConfig {
	args := m.Called()
	return args.Get(0).(config.TriageConfig)
}

func (m *MockConfig) Context() config.ContextConfig {
	args := m.Called()
	return args.Get(0).(config.ContextConfig)
}

func (m *MockConfig) Output() config.OutputConfig {
	args := m.Called()
	return args.Get(0).(config.OutputConfig)
}

// --- Setters ---

func (m *MockConfig) SetTriageConcurrency(n int) {
	m.Called(n)
}

func (m *MockConfig) SetTriageFailMode(f config.FailMode) {
	m.Called(f)
}

func (m *MockConfig) SetTriageUnknownVerdict(p config.UnknownVerdictPolicy) {
	m.Called(p)
}

func (m *MockConfig) SetContextConfig(c config.ContextConfig) {
	m.Called(c)
}

func (m *MockConfig) SetOutputConfig(o config.OutputConfig) {
	m.Called(o)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls. A cancelled context
// short-circuits like a real client would.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Scripted LLM Client --

// ScriptedLLMClient answers by tier from a user-prompt lookup function. It is
// safe for concurrent use and records every request it receives.
type ScriptedLLMClient struct {
	mu       sync.Mutex
	requests []schemas.GenerationRequest

	// Respond returns the text (or error) for a request.
	Respond func(req schemas.GenerationRequest) (string, error)
}

func (s *ScriptedLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.Respond(req)
}

func (s *ScriptedLLMClient) Close() error { return nil }

// Requests returns a copy of the requests seen so far.
func (s *ScriptedLLMClient) Requests() []schemas.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.GenerationRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// -- Code Context Provider Mock --

// MockContextProvider mocks codecontext.Provider.
type MockContextProvider struct {
	mock.Mock
}

func (m *MockContextProvider) Snippet(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}
