// internal/reporting/sarif_reporter.go
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/reporting/sarif"
	"github.com/xkilldash9x/sast-agent/internal/triage"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "sast-agent"
	ToolInfoURI  = "https://github.com/xkilldash9x/sast-agent"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

	// FingerprintKey names the partial fingerprint carrying the finding digest.
	FingerprintKey = "findingHash/v1"
	rulePrefix     = "SAST-AGENT-"
)

// ruleIDSanitizer matches runs of characters not allowed in a rule ID.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// Results are buffered and written on Close. It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the rule index.
	mu sync.Mutex
	// rulesByPriority maps a priority label to its registered rule ID.
	rulesByPriority map[schemas.PriorityLabel]string
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						// Empty slices, not nil, so they marshal as [].
						Rules: []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:          writer,
		logger:          logger.Named("sarif_reporter"),
		log:             log,
		rulesByPriority: make(map[schemas.PriorityLabel]string),
	}
}

// Write converts every remediated outcome of the run into a SARIF result.
// Dropped and failed findings are not reported.
func (r *SARIFReporter) Write(report *schemas.RunReport) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	run.AutomationDetails = &sarif.RunAutomationDetails{ID: pString(report.RunID)}
	run.Invocations = append(run.Invocations, &sarif.Invocation{
		ExecutionSuccessful: true,
		StartTimeUTC:        pString(report.StartedAt.UTC().Format(time.RFC3339)),
		EndTimeUTC:          pString(report.FinishedAt.UTC().Format(time.RFC3339)),
	})

	written := 0
	for _, outcome := range report.Outcomes {
		if outcome.Status != schemas.StatusRemediated || outcome.Record == nil {
			continue
		}
		run.Results = append(run.Results, r.createResult(outcome))
		written++
	}

	r.logger.Debug("Wrote findings to SARIF buffer",
		zap.String("run_id", report.RunID),
		zap.Int("findings_count", written),
		zap.Duration("duration", time.Since(startTime)),
	)
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// createResult builds the SARIF result for a remediated outcome.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) createResult(outcome schemas.Outcome) *sarif.Result {
	record := outcome.Record
	code, rationale := triage.SplitSuggestion(record.Remediation)

	properties := sarif.PropertyBag{
		"priority":    string(record.Priority),
		"score":       outcome.Score,
		"verdict":     string(outcome.Verdict),
		"validation":  record.Validation,
		"remediation": record.Remediation,
	}
	if code != "" {
		properties["suggested_code"] = code
		properties["rationale"] = rationale
	}

	result := &sarif.Result{
		RuleID: r.ensureRule(record.Priority),
		Message: &sarif.Message{
			Text:     pString(record.Finding),
			Markdown: pString(fmt.Sprintf("%s\n\n**Suggested fix:**\n\n%s", record.Finding, record.Remediation)),
		},
		Level:      mapPriorityToSARIFLevel(record.Priority),
		Locations:  createLocations(record.File),
		Properties: &properties,
	}
	if outcome.Fingerprint != "" {
		result.PartialFingerprints = map[string]string{FingerprintKey: outcome.Fingerprint}
	}
	return result
}

// ensureRule registers one rule per priority bucket and returns its ID.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(priority schemas.PriorityLabel) string {
	if ruleID, exists := r.rulesByPriority[priority]; exists {
		return ruleID
	}

	ruleID := rulePrefix + sanitizeRuleName(string(priority))
	r.logger.Debug("Registering new SARIF rule definition", zap.String("rule_id", ruleID))

	name := string(priority)
	if name == "" {
		name = "Unprioritized finding"
	}
	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               ruleID,
		Name:             pString(name),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(fmt.Sprintf("Validated SAST finding (%s)", name))},
		FullDescription: &sarif.MultiformatMessageString{
			Text: pString("A static analysis finding confirmed by validation and ranked by severity, exposure and asset criticality."),
		},
		DefaultConfiguration: &sarif.ReportingConfiguration{Level: mapPriorityToSARIFLevel(priority)},
		Properties: &sarif.PropertyBag{
			"tags":      []string{"security", "sast"},
			"precision": "high",
		},
	})
	r.rulesByPriority[priority] = ruleID
	return ruleID
}

// sanitizeRuleName turns a label such as "P1 - Critical" into "P1-CRITICAL".
func sanitizeRuleName(name string) string {
	sanitized := strings.ToUpper(name)
	sanitized = ruleIDSanitizer.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		return "UNPRIORITIZED"
	}
	return sanitized
}

func createLocations(file string) []*sarif.Location {
	return []*sarif.Location{{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(file)},
		},
	}}
}

// mapPriorityToSARIFLevel maps P1/P2 to error, P3 to warning and everything else to note.
func mapPriorityToSARIFLevel(priority schemas.PriorityLabel) sarif.Level {
	switch priority {
	case schemas.PriorityCritical, schemas.PriorityHigh:
		return sarif.LevelError
	case schemas.PriorityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
