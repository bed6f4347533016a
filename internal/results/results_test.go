package results

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
	"github.com/xkilldash9x/sast-agent/internal/llmclient"
	"github.com/xkilldash9x/sast-agent/internal/mocks"
	"github.com/xkilldash9x/sast-agent/internal/triage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Scorer --

func TestScoreMatrix(t *testing.T) {
	severities := []struct {
		sev    schemas.Severity
		weight int
	}{
		{schemas.SeverityCritical, 10},
		{schemas.SeverityHigh, 8},
		{schemas.SeverityMedium, 5},
		{schemas.SeverityLow, 0},
		{"critical", 0},
		{"", 0},
	}
	exposures := []struct {
		exp    schemas.Exposure
		weight int
	}{
		{schemas.ExposureInternal, 0},
		{schemas.ExposureExternal, 5},
		{"", 0},
	}

	for _, s := range severities {
		for _, e := range exposures {
			for _, critical := range []bool{false, true} {
				name := fmt.Sprintf("%q/%q/critical=%v", s.sev, e.exp, critical)
				t.Run(name, func(t *testing.T) {
					f := schemas.Finding{Severity: s.sev}
					m := schemas.Metadata{Exposure: e.exp, CriticalAsset: critical}

					want := s.weight + e.weight
					if critical {
						want += 5
					}
					assert.Equal(t, want, Score(f, m))
					assert.Equal(t, LabelFor(want), Prioritize(f, m))
				})
			}
		}
	}
}

func TestPrioritize_Examples(t *testing.T) {
	assert.Equal(t, schemas.PriorityCritical, Prioritize(
		schemas.Finding{Severity: schemas.SeverityCritical},
		schemas.Metadata{Exposure: schemas.ExposureExternal, CriticalAsset: true}))
	assert.Equal(t, 20, Score(
		schemas.Finding{Severity: schemas.SeverityCritical},
		schemas.Metadata{Exposure: schemas.ExposureExternal, CriticalAsset: true}))

	low := schemas.Finding{Severity: schemas.SeverityLow}
	assert.Equal(t, 0, Score(low, schemas.Metadata{Exposure: schemas.ExposureInternal}))
	assert.Equal(t, schemas.PriorityLow, Prioritize(low, schemas.Metadata{}))

	assert.Equal(t, schemas.PriorityCritical, Prioritize(
		schemas.Finding{Severity: schemas.SeverityHigh},
		schemas.Metadata{CriticalAsset: true, Exposure: schemas.ExposureExternal}), "8+5+5=18")
	assert.Equal(t, schemas.PriorityHigh, Prioritize(
		schemas.Finding{Severity: schemas.SeverityMedium},
		schemas.Metadata{Exposure: schemas.ExposureExternal}), "5+5=10")
}

func TestLabelFor_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  schemas.PriorityLabel
	}{
		{20, schemas.PriorityCritical},
		{15, schemas.PriorityCritical},
		{14, schemas.PriorityHigh},
		{10, schemas.PriorityHigh},
		{9, schemas.PriorityMedium},
		{6, schemas.PriorityMedium},
		{5, schemas.PriorityLow},
		{0, schemas.PriorityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LabelFor(tt.score), "score %d", tt.score)
	}
}

func TestScore_Idempotent(t *testing.T) {
	f := schemas.Finding{Severity: schemas.SeverityHigh}
	m := schemas.Metadata{Exposure: schemas.ExposureExternal}
	assert.Equal(t, Score(f, m), Score(f, m))
	assert.Equal(t, Prioritize(f, m), Prioritize(f, m))
}

func TestRank(t *testing.T) {
	findings := []schemas.Finding{
		{FilePath: "a.py", Severity: schemas.SeverityLow},
		{FilePath: "b.py", Severity: schemas.SeverityCritical, Metadata: schemas.Metadata{CriticalAsset: true}},
		{FilePath: "c.py"},
		{FilePath: "d.py", Severity: schemas.SeverityMedium},
	}

	ranked := Rank(findings)

	require.Len(t, ranked, 4)
	var order []string
	for _, r := range ranked {
		order = append(order, r.Finding.FilePath)
	}
	assert.Equal(t, []string{"b.py", "c.py", "d.py", "a.py"}, order, "ties keep input order")
	assert.Equal(t, schemas.SeverityMedium, ranked[1].Finding.Severity, "missing severity defaults to Medium")
	assert.Equal(t, 2, ranked[1].Index)
	assert.Equal(t, 15, ranked[0].Score)
	assert.Equal(t, schemas.PriorityCritical, ranked[0].Priority)
}

// -- Fingerprint --

func TestFingerprint(t *testing.T) {
	f := schemas.Finding{FilePath: "app.py", Description: "SQL Injection", Severity: schemas.SeverityHigh}

	a, err := Fingerprint(f)
	require.NoError(t, err)
	b, err := Fingerprint(f)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	f.Description = "XSS"
	c, err := Fingerprint(f)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

// -- Pipeline --

const paymentSnippet = `def process_payment(card_number, expiry_date):
    sql = f"SELECT * FROM cards WHERE number='{card_number}' AND expiry='{expiry_date}'"
    cursor.execute(sql)`

func testTriageConfig() config.TriageConfig {
	return config.NewDefaultConfig().Triage()
}

// scripted answers validation prompts with validate(prompt) and remediation
// prompts with remediate(prompt).
func scripted(validate, remediate func(prompt string) (string, error)) *mocks.ScriptedLLMClient {
	return &mocks.ScriptedLLMClient{
		Respond: func(req schemas.GenerationRequest) (string, error) {
			if req.Tier == schemas.TierFast {
				return validate(req.UserPrompt)
			}
			return remediate(req.UserPrompt)
		},
	}
}

func newTestPipeline(client schemas.LLMClient, cfg config.TriageConfig, logger *zap.Logger) *Pipeline {
	return NewPipeline(
		triage.NewValidator(logger, client, cfg),
		triage.NewAdvisor(logger, client, cfg),
		triage.ParseVerdict,
		cfg,
		logger,
	)
}

func TestPipeline_PaymentServiceScenario(t *testing.T) {
	const validation = "VALID - The SQL statement is built from unsanitized card input."
	const remediation = "Use parameterized queries: cursor.execute(\"SELECT * FROM cards WHERE number=%s AND expiry=%s\", (card_number, expiry_date))"

	client := scripted(
		func(string) (string, error) { return validation, nil },
		func(string) (string, error) { return remediation, nil },
	)
	p := newTestPipeline(client, testTriageConfig(), zap.NewNop())

	findings := []schemas.Finding{{
		FilePath:    "payment_service.py",
		Description: "SQL Injection in process_payment",
		Severity:    schemas.SeverityCritical,
		Metadata:    schemas.Metadata{Exposure: schemas.ExposureExternal, CriticalAsset: true},
	}}
	contexts := schemas.CodeContext{"payment_service.py": paymentSnippet}

	report, err := p.Process(context.Background(), findings, contexts)
	require.NoError(t, err)

	want := []schemas.ResultRecord{{
		File:        "payment_service.py",
		Finding:     "SQL Injection in process_payment",
		Priority:    schemas.PriorityCritical,
		Remediation: remediation,
		Validation:  validation,
	}}
	if diff := cmp.Diff(want, report.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, 20, report.Outcomes[0].Score)
	assert.NotEmpty(t, report.Outcomes[0].Fingerprint)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Summary[schemas.StatusRemediated])

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].UserPrompt, paymentSnippet)
	assert.Equal(t, 0.2, reqs[0].Options.Temperature)
	assert.Equal(t, 0.3, reqs[1].Options.Temperature)
}

func TestPipeline_DropsNonValidAndPreservesOrder(t *testing.T) {
	verdicts := map[string]string{
		"f0": "VALID - reachable",
		"f1": "FALSE POSITIVE - constant input",
		"f2": "VALID: tainted",
		"f3": "Cannot tell without more context.",
		"f4": "VALID",
	}
	client := scripted(
		func(prompt string) (string, error) {
			for id, v := range verdicts {
				if strings.Contains(prompt, "Finding:\n"+id+"\n") {
					return v, nil
				}
			}
			return "", errors.New("unexpected prompt")
		},
		func(prompt string) (string, error) { return "fix", nil },
	)

	var findings []schemas.Finding
	for i := 0; i < 5; i++ {
		findings = append(findings, schemas.Finding{FilePath: fmt.Sprintf("f%d.py", i), Description: fmt.Sprintf("f%d", i)})
	}

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			cfg := testTriageConfig()
			cfg.Concurrency = concurrency
			report, err := newTestPipeline(client, cfg, zap.NewNop()).Process(context.Background(), findings, nil)
			require.NoError(t, err)

			records := report.Records()
			assert.LessOrEqual(t, len(records), len(findings))
			var files []string
			for _, r := range records {
				files = append(files, r.File)
			}
			assert.Equal(t, []string{"f0.py", "f2.py", "f4.py"}, files)

			require.Len(t, report.Outcomes, 5)
			for i, o := range report.Outcomes {
				assert.Equal(t, i, o.Index)
			}
			assert.Equal(t, schemas.StatusFalsePositive, report.Outcomes[1].Status)
			assert.Equal(t, schemas.StatusValidationError, report.Outcomes[3].Status)
			assert.Equal(t, schemas.VerdictUnknown, report.Outcomes[3].Verdict)
			assert.Equal(t, 3, report.Summary[schemas.StatusRemediated])
		})
	}
}

func TestPipeline_UnknownVerdictReview(t *testing.T) {
	client := scripted(
		func(string) (string, error) { return "Maybe.", nil },
		func(string) (string, error) { return "unused", nil },
	)
	cfg := testTriageConfig()
	cfg.UnknownVerdict = config.UnknownVerdictReview

	report, err := newTestPipeline(client, cfg, zap.NewNop()).Process(context.Background(),
		[]schemas.Finding{{FilePath: "x.py", Description: "XSS"}}, nil)

	require.NoError(t, err)
	assert.Empty(t, report.Records(), "needs_review never produces a record")
	assert.Equal(t, schemas.StatusNeedsReview, report.Outcomes[0].Status)
	assert.Len(t, client.Requests(), 1, "no remediation for unclassified findings")
}

func TestPipeline_StructuredVerdictNeedsExactValid(t *testing.T) {
	for _, response := range []string{
		`{"verdict": "valid", "explanation": "tainted input"}`,
		`{"verdict": "true_positive", "explanation": "tainted input"}`,
	} {
		t.Run(response, func(t *testing.T) {
			client := scripted(
				func(string) (string, error) { return response, nil },
				func(string) (string, error) { return "unused", nil },
			)

			report, err := newTestPipeline(client, testTriageConfig(), zap.NewNop()).Process(context.Background(),
				[]schemas.Finding{{FilePath: "x.py", Severity: schemas.SeverityHigh, Description: "SQLi"}}, nil)

			require.NoError(t, err)
			assert.Empty(t, report.Records())
			require.Len(t, report.Outcomes, 1)
			assert.Equal(t, schemas.StatusValidationError, report.Outcomes[0].Status)
			assert.Equal(t, schemas.VerdictUnknown, report.Outcomes[0].Verdict)
			assert.Len(t, client.Requests(), 1, "no remediation without a VALID verdict")
		})
	}
}

func TestPipeline_MissingContextPassesEmptySnippet(t *testing.T) {
	client := scripted(
		func(string) (string, error) { return "FALSE POSITIVE", nil },
		func(string) (string, error) { return "", nil },
	)

	_, err := newTestPipeline(client, testTriageConfig(), zap.NewNop()).Process(context.Background(),
		[]schemas.Finding{{FilePath: "missing.py", Description: "Path traversal"}},
		schemas.CodeContext{"other.py": "print(1)"})

	require.NoError(t, err)
	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].UserPrompt, "Code:\n\n\nFinding:\nPath traversal")
}

func TestPipeline_DefaultSeverityIsMedium(t *testing.T) {
	client := scripted(
		func(string) (string, error) { return "VALID", nil },
		func(string) (string, error) { return "fix", nil },
	)

	report, err := newTestPipeline(client, testTriageConfig(), zap.NewNop()).Process(context.Background(),
		[]schemas.Finding{{FilePath: "a.py", Description: "d", Metadata: schemas.Metadata{Exposure: schemas.ExposureExternal}}}, nil)

	require.NoError(t, err)
	assert.Equal(t, 10, report.Outcomes[0].Score)
	assert.Equal(t, schemas.PriorityHigh, report.Records()[0].Priority)
}

func TestPipeline_ContinueOnServiceError(t *testing.T) {
	remote := &llmclient.RemoteServiceError{Provider: "openai", StatusCode: 503, Err: errors.New("unavailable")}
	client := scripted(
		func(prompt string) (string, error) {
			if strings.Contains(prompt, "Finding:\nbroken\n") {
				return "", remote
			}
			return "VALID", nil
		},
		func(string) (string, error) { return "fix", nil },
	)

	core, logs := observer.New(zap.WarnLevel)
	findings := []schemas.Finding{
		{FilePath: "a.py", Description: "ok"},
		{FilePath: "b.py", Description: "broken"},
		{FilePath: "c.py", Description: "ok"},
	}

	report, err := newTestPipeline(client, testTriageConfig(), zap.New(core)).Process(context.Background(), findings, nil)

	require.NoError(t, err)
	assert.Len(t, report.Records(), 2)
	assert.Equal(t, schemas.StatusServiceError, report.Outcomes[1].Status)
	assert.Contains(t, report.Outcomes[1].Error, "status 503")
	assert.Equal(t, 1, logs.FilterMessage("Validation call failed").Len())
}

func TestPipeline_RemediationFailureKeepsVerdict(t *testing.T) {
	client := scripted(
		func(string) (string, error) { return "VALID - reachable", nil },
		func(string) (string, error) { return "", &llmclient.RemoteServiceError{Provider: "openai", Err: context.DeadlineExceeded} },
	)

	report, err := newTestPipeline(client, testTriageConfig(), zap.NewNop()).Process(context.Background(),
		[]schemas.Finding{{FilePath: "a.py", Description: "d", Severity: schemas.SeverityHigh}}, nil)

	require.NoError(t, err)
	o := report.Outcomes[0]
	assert.Equal(t, schemas.StatusServiceError, o.Status)
	assert.Equal(t, schemas.VerdictValid, o.Verdict)
	assert.Equal(t, 8, o.Score)
	assert.Nil(t, o.Record)
}

func TestPipeline_FailClosed(t *testing.T) {
	var calls int32
	client := scripted(
		func(prompt string) (string, error) {
			atomic.AddInt32(&calls, 1)
			if strings.Contains(prompt, "Finding:\nbroken\n") {
				return "", &llmclient.RemoteServiceError{Provider: "openai", StatusCode: 500, Err: errors.New("boom")}
			}
			return "VALID", nil
		},
		func(string) (string, error) { return "fix", nil },
	)
	cfg := testTriageConfig()
	cfg.FailMode = config.FailModeFailClosed

	findings := []schemas.Finding{
		{FilePath: "a.py", Description: "ok"},
		{FilePath: "b.py", Description: "broken"},
		{FilePath: "c.py", Description: "ok"},
	}

	report, err := newTestPipeline(client, cfg, zap.NewNop()).Process(context.Background(), findings, nil)

	assert.Nil(t, report)
	require.Error(t, err)
	var rse *llmclient.RemoteServiceError
	assert.True(t, errors.As(err, &rse))
	assert.Contains(t, err.Error(), "finding 1 (b.py)")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "sequential processing stops at the first failure")
}

func TestPipeline_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := scripted(
		func(string) (string, error) {
			cancel()
			return "VALID", nil
		},
		func(string) (string, error) { return "fix", nil },
	)

	findings := []schemas.Finding{{FilePath: "a.py", Description: "d"}, {FilePath: "b.py", Description: "d"}}
	report, err := newTestPipeline(client, testTriageConfig(), zap.NewNop()).Process(ctx, findings, nil)

	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_EmptyBatch(t *testing.T) {
	p := newTestPipeline(scripted(nil, nil), testTriageConfig(), zap.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	report, err := p.Process(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Empty(t, report.Records())
	assert.Equal(t, fixed, report.StartedAt)
	assert.Equal(t, fixed, report.FinishedAt)
}
