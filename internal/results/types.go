package results

import (
	"context"
	"time"

	"github.com/xkilldash9x/sast-agent/api/schemas"
)

// Validator judges whether a finding is real. Implemented by triage.Validator.
type Validator interface {
	Validate(ctx context.Context, snippet, description string) (string, error)
}

// Advisor drafts a fix for a confirmed finding. Implemented by triage.Advisor.
type Advisor interface {
	Suggest(ctx context.Context, snippet, description string) (string, error)
}

// VerdictParser classifies a validation response.
type VerdictParser func(text string) schemas.ValidationVerdict

// Clock is swapped in tests.
type Clock func() time.Time
