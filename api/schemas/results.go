package schemas

import "time"

// -- Validation Schemas --

// Verdict is the classification extracted from a validation response.
type Verdict string

const (
	VerdictValid         Verdict = "VALID"
	VerdictFalsePositive Verdict = "FALSE_POSITIVE"
	VerdictUnknown       Verdict = "UNKNOWN" // The response matched no recognised shape.
)

// ValidationVerdict is the parsed form of a validation response. Raw keeps the
// model text exactly as returned.
type ValidationVerdict struct {
	Verdict     Verdict `json:"verdict"`
	Explanation string  `json:"explanation"`
	Raw         string  `json:"-"`
}

// -- Priority Schemas --

// PriorityLabel is the remediation priority bucket derived from a finding.
type PriorityLabel string

const (
	PriorityCritical PriorityLabel = "P1 - Critical"
	PriorityHigh     PriorityLabel = "P2 - High"
	PriorityMedium   PriorityLabel = "P3 - Medium"
	PriorityLow      PriorityLabel = "P4 - Low"
)

// -- Result Schemas --

// ResultRecord is the unit of pipeline output for a validated finding.
type ResultRecord struct {
	File        string        `json:"file"`
	Finding     string        `json:"finding"`
	Priority    PriorityLabel `json:"priority"`
	Remediation string        `json:"remediation"`
	Validation  string        `json:"validation"`
}

// OutcomeStatus tags how processing of a single finding ended.
type OutcomeStatus string

const (
	StatusRemediated      OutcomeStatus = "remediated"       // Validated, scored, and a fix drafted.
	StatusFalsePositive   OutcomeStatus = "false_positive"   // Dropped by validation.
	StatusNeedsReview     OutcomeStatus = "needs_review"     // Validation response was not classifiable.
	StatusValidationError OutcomeStatus = "validation_error" // The service answered but the answer was unusable.
	StatusServiceError    OutcomeStatus = "service_error"    // The completion service failed.
)

// Outcome is the tagged result for one input finding.
type Outcome struct {
	Index       int           `json:"index"`       // Position of the finding in the input batch.
	Fingerprint string        `json:"fingerprint"` // SHA-256 of the canonical JSON of the finding.
	File        string        `json:"file"`
	Status      OutcomeStatus `json:"status"`
	Verdict     Verdict       `json:"verdict,omitempty"`
	Explanation string        `json:"explanation,omitempty"`
	Score       int           `json:"score"`
	Record      *ResultRecord `json:"record,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// RunReport aggregates the outcomes of one batch run.
type RunReport struct {
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Summary    map[OutcomeStatus]int `json:"summary"`
	Outcomes   []Outcome             `json:"outcomes"`
}

// Records returns the result records of remediated outcomes in input order.
func (r *RunReport) Records() []ResultRecord {
	records := make([]ResultRecord, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Status == StatusRemediated && o.Record != nil {
			records = append(records, *o.Record)
		}
	}
	return records
}
