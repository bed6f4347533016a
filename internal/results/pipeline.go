// File: internal/results/pipeline.go
package results

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
)

// Pipeline runs each finding through validate, prioritize and remediate.
type Pipeline struct {
	validator Validator
	advisor   Advisor
	parse     VerdictParser
	cfg       config.TriageConfig
	logger    *zap.Logger
	now       Clock
}

// NewPipeline creates a new results processing pipeline.
func NewPipeline(validator Validator, advisor Advisor, parse VerdictParser, cfg config.TriageConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		validator: validator,
		advisor:   advisor,
		parse:     parse,
		cfg:       cfg,
		logger:    logger.Named("results_pipeline"),
		now:       time.Now,
	}
}

// Process handles a batch of findings. Outcomes are returned in input order
// regardless of concurrency. With fail mode "continue" a failing finding
// becomes a tagged outcome; with "fail_closed" the first service failure
// cancels the batch and is returned.
func (p *Pipeline) Process(ctx context.Context, findings []schemas.Finding, contexts schemas.CodeContext) (*schemas.RunReport, error) {
	report := &schemas.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: p.now().UTC(),
	}
	logger := p.logger.With(zap.String("run_id", report.RunID))
	logger.Info("Starting batch processing",
		zap.Int("findings", len(findings)),
		zap.Int("concurrency", p.concurrency()),
		zap.String("fail_mode", string(p.cfg.FailMode)))

	outcomes := make([]schemas.Outcome, len(findings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())

	for i, f := range findings {
		g.Go(func() error {
			outcome, err := p.processOne(gctx, logger, i, f, contexts.Snippet(f.FilePath))
			outcomes[i] = outcome
			if err != nil && p.cfg.FailMode == config.FailModeFailClosed {
				return fmt.Errorf("finding %d (%s): %w", i, f.FilePath, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Batch aborted", zap.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Outcomes = outcomes
	report.Summary = summarize(outcomes)
	report.FinishedAt = p.now().UTC()

	logger.Info("Batch processing complete",
		zap.Int("records", len(report.Records())),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// processOne runs the three stages for a single finding. The returned error is
// non-nil only for completion service failures.
func (p *Pipeline) processOne(ctx context.Context, logger *zap.Logger, index int, f schemas.Finding, snippet string) (schemas.Outcome, error) {
	f = withDefaults(f)
	logger = logger.With(zap.Int("index", index), zap.String("file", f.FilePath))

	outcome := schemas.Outcome{Index: index, File: f.FilePath}
	fp, err := Fingerprint(f)
	if err != nil {
		logger.Warn("Could not fingerprint finding", zap.Error(err))
	}
	outcome.Fingerprint = fp

	if err := ctx.Err(); err != nil {
		return failed(outcome, err), err
	}

	if snippet == "" {
		logger.Debug("No code context for file; validating with an empty snippet.")
	}

	validation, err := p.validator.Validate(ctx, snippet, f.Description)
	if err != nil {
		logger.Warn("Validation call failed", zap.Error(err))
		return failed(outcome, err), err
	}

	verdict := p.parse(validation)
	outcome.Verdict = verdict.Verdict
	outcome.Explanation = verdict.Explanation

	switch verdict.Verdict {
	case schemas.VerdictValid:
	case schemas.VerdictFalsePositive:
		logger.Info("Finding dropped as false positive")
		outcome.Status = schemas.StatusFalsePositive
		return outcome, nil
	default:
		if p.cfg.UnknownVerdict == config.UnknownVerdictReview {
			logger.Info("Unclassifiable validation response; flagged for review")
			outcome.Status = schemas.StatusNeedsReview
		} else {
			logger.Info("Unclassifiable validation response; finding dropped")
			outcome.Status = schemas.StatusValidationError
			outcome.Error = "validation response did not contain a verdict"
		}
		return outcome, nil
	}

	outcome.Score = Score(f, f.Metadata)
	priority := LabelFor(outcome.Score)

	remediation, err := p.advisor.Suggest(ctx, snippet, f.Description)
	if err != nil {
		logger.Warn("Remediation call failed", zap.Error(err))
		return failed(outcome, err), err
	}

	outcome.Status = schemas.StatusRemediated
	outcome.Record = &schemas.ResultRecord{
		File:        f.FilePath,
		Finding:     f.Description,
		Priority:    priority,
		Remediation: remediation,
		Validation:  validation,
	}
	logger.Info("Finding validated and remediated", zap.String("priority", string(priority)))
	return outcome, nil
}

func (p *Pipeline) concurrency() int {
	if p.cfg.Concurrency < 1 {
		return 1
	}
	return p.cfg.Concurrency
}

func failed(o schemas.Outcome, err error) schemas.Outcome {
	o.Status = schemas.StatusServiceError
	o.Error = err.Error()
	return o
}

// summarize counts outcomes per status.
func summarize(outcomes []schemas.Outcome) map[schemas.OutcomeStatus]int {
	summary := make(map[schemas.OutcomeStatus]int)
	for _, o := range outcomes {
		summary[o.Status]++
	}
	return summary
}
