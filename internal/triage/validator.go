// internal/triage/validator.go
package triage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
)

// Validator asks the completion service whether a reported vulnerability is
// real, reachable and exploitable.
type Validator struct {
	logger    *zap.Logger
	llmClient schemas.LLMClient
	cfg       config.TriageConfig
}

// NewValidator initializes a validator over the given completion client.
func NewValidator(logger *zap.Logger, llmClient schemas.LLMClient, cfg config.TriageConfig) *Validator {
	return &Validator{
		logger:    logger.Named("validator"),
		llmClient: llmClient,
		cfg:       cfg,
	}
}

// Validate returns the service's trimmed response verbatim. An empty snippet
// is allowed; the prompt is sent with an empty code section.
func (v *Validator) Validate(ctx context.Context, snippet, description string) (string, error) {
	req := schemas.GenerationRequest{
		UserPrompt: buildValidationPrompt(snippet, description, v.cfg.StructuredVerdicts),
		Tier:       schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     v.cfg.ValidationTemperature,
			ForceJSONFormat: v.cfg.StructuredVerdicts,
		},
	}

	if snippet == "" {
		v.logger.Debug("Validating finding without code context.")
	}

	response, err := v.llmClient.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("validation request failed: %w", err)
	}
	return strings.TrimSpace(response), nil
}

// ValidateAndParse runs Validate and classifies the response.
func (v *Validator) ValidateAndParse(ctx context.Context, snippet, description string) (schemas.ValidationVerdict, error) {
	text, err := v.Validate(ctx, snippet, description)
	if err != nil {
		return schemas.ValidationVerdict{}, err
	}
	verdict := ParseVerdict(text)
	v.logger.Debug("Validation verdict parsed.", zap.String("verdict", string(verdict.Verdict)))
	return verdict, nil
}
