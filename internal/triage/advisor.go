// internal/triage/advisor.go
package triage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
	"github.com/xkilldash9x/sast-agent/internal/llmutil"
)

// Advisor drafts a secure fix for a confirmed finding.
type Advisor struct {
	logger    *zap.Logger
	llmClient schemas.LLMClient
	cfg       config.TriageConfig
}

// NewAdvisor initializes an advisor over the given completion client.
func NewAdvisor(logger *zap.Logger, llmClient schemas.LLMClient, cfg config.TriageConfig) *Advisor {
	return &Advisor{
		logger:    logger.Named("advisor"),
		llmClient: llmClient,
		cfg:       cfg,
	}
}

// Suggest returns the service's trimmed remediation text verbatim.
func (a *Advisor) Suggest(ctx context.Context, snippet, description string) (string, error) {
	req := schemas.GenerationRequest{
		UserPrompt: buildRemediationPrompt(snippet, description),
		Tier:       schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature: a.cfg.RemediationTemperature,
		},
	}

	response, err := a.llmClient.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("remediation request failed: %w", err)
	}
	return strings.TrimSpace(response), nil
}

// SplitSuggestion separates a remediation text into its fenced code block and
// the remaining rationale. Without a fence the whole text is the rationale.
func SplitSuggestion(text string) (code, rationale string) {
	code, rationale, _ = llmutil.ExtractCodeBlock(text)
	return code, rationale
}
