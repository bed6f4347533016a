// internal/reporting/json_reporter.go
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/api/schemas"
)

// JSONReporter writes each run as an indented JSON document. By default the
// document is the array of result records; with outcomes set it is the whole
// run report, dropped and failed findings included.
type JSONReporter struct {
	writer   io.WriteCloser
	outcomes bool
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewJSONReporter creates a reporter that takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser, outcomes bool, logger *zap.Logger) *JSONReporter {
	return &JSONReporter{
		writer:   writer,
		outcomes: outcomes,
		logger:   logger.Named("json_reporter"),
	}
}

// Write encodes the report immediately.
func (r *JSONReporter) Write(report *schemas.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var doc any = report.Records()
	if r.outcomes {
		doc = report
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}

	r.logger.Debug("Wrote run report",
		zap.String("run_id", report.RunID),
		zap.Bool("outcomes", r.outcomes),
		zap.Int("records", len(report.Records())),
	)
	return nil
}

// Close closes the underlying writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}
