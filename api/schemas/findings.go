package schemas

// -- Finding Schemas --

// Severity is the severity label a SAST tool attached to a finding. Values are
// compared exactly as the tool wrote them ("Critical", not "critical").
type Severity string

// Severity labels recognised by the priority scorer. Any other value is legal
// input but contributes nothing to the score.
const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// DefaultSeverity is applied by the loader when a finding carries no severity.
const DefaultSeverity = SeverityMedium

// Exposure describes whether the affected asset is reachable from outside the
// organization's network.
type Exposure string

const (
	ExposureInternal Exposure = "internal" // Reachable only from inside the network. The default.
	ExposureExternal Exposure = "external" // Reachable from the internet.
)

// Metadata carries the asset context used for prioritization.
type Metadata struct {
	Exposure      Exposure `json:"exposure,omitempty"`
	CriticalAsset bool     `json:"critical_asset"`
}

// Finding is a single potential vulnerability reported by a SAST tool. It is
// produced externally and treated as read-only.
type Finding struct {
	FilePath    string   `json:"file_path"`   // Repository-relative path of the affected file.
	Description string   `json:"description"` // Free-text description from the scanner.
	Severity    Severity `json:"severity"`    // Scanner severity label.
	Metadata    Metadata `json:"metadata"`    // Exposure and asset criticality.
}

// FindingsDocument is the top-level shape of a findings input file.
type FindingsDocument struct {
	Findings []Finding `json:"findings"`
}

// CodeContext maps a file path to the source text used as prompt context.
// A missing key means no context is available for that file.
type CodeContext map[string]string

// Snippet returns the source text for path, or "" when none is known.
func (c CodeContext) Snippet(path string) string {
	return c[path]
}
