// internal/llmclient/guard.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
)

// Guard wraps a provider client with a per-call deadline and an optional
// circuit breaker. Every error it returns is a *RemoteServiceError.
type Guard struct {
	name    string
	client  schemas.LLMClient
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewGuard decorates client according to rc.
func NewGuard(name string, client schemas.LLMClient, rc config.ResilienceConfig, logger *zap.Logger) *Guard {
	g := &Guard{
		name:    name,
		client:  client,
		timeout: rc.CallTimeout,
		logger:  logger.Named("llm_guard").With(zap.String("model", name)),
	}

	if rc.Breaker.Enabled {
		threshold := rc.Breaker.FailureThreshold
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: rc.Breaker.HalfOpenRequests,
			Timeout:     rc.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// A caller abandoning the batch says nothing about the service.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.logger.Warn("LLM circuit breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
	return g
}

// Generate forwards the request under the guard's deadline and breaker.
func (g *Guard) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.breaker == nil {
		out, err := g.client.Generate(callCtx, req)
		if err != nil {
			return "", g.wrap(err)
		}
		return out, nil
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.client.Generate(callCtx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.logger.Debug("LLM call rejected by circuit breaker", zap.Error(err))
			return "", &RemoteServiceError{Provider: g.name, Err: fmt.Errorf("circuit breaker: %w", err)}
		}
		return "", g.wrap(err)
	}
	return out.(string), nil
}

func (g *Guard) wrap(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		g.logger.Warn("LLM call exceeded its deadline", zap.Duration("timeout", g.timeout))
	}
	return asRemoteServiceError(g.name, err)
}

// State reports the breaker state, or "disabled".
func (g *Guard) State() string {
	if g.breaker == nil {
		return "disabled"
	}
	return g.breaker.State().String()
}

// Close closes the wrapped client.
func (g *Guard) Close() error {
	return g.client.Close()
}
