package results

import (
	"sort"

	"github.com/xkilldash9x/sast-agent/api/schemas"
)

// Severity and context weights. Unrecognised severities contribute nothing.
var severityWeights = map[schemas.Severity]int{
	schemas.SeverityCritical: 10,
	schemas.SeverityHigh:     8,
	schemas.SeverityMedium:   5,
}

const (
	externalExposureWeight = 5
	criticalAssetWeight    = 5
)

// Score computes the additive priority score of a finding. Severity matching
// is exact and case-sensitive.
func Score(f schemas.Finding, m schemas.Metadata) int {
	score := severityWeights[f.Severity]
	if m.Exposure == schemas.ExposureExternal {
		score += externalExposureWeight
	}
	if m.CriticalAsset {
		score += criticalAssetWeight
	}
	return score
}

// LabelFor maps a score onto its priority bucket, checking thresholds from high to low.
func LabelFor(score int) schemas.PriorityLabel {
	switch {
	case score >= 15:
		return schemas.PriorityCritical
	case score >= 10:
		return schemas.PriorityHigh
	case score >= 6:
		return schemas.PriorityMedium
	default:
		return schemas.PriorityLow
	}
}

// Prioritize returns the priority label for a finding and its metadata.
func Prioritize(f schemas.Finding, m schemas.Metadata) schemas.PriorityLabel {
	return LabelFor(Score(f, m))
}

// RankedFinding pairs a finding with its score and label.
type RankedFinding struct {
	Index    int                   `json:"index"`
	Finding  schemas.Finding       `json:"finding"`
	Score    int                   `json:"score"`
	Priority schemas.PriorityLabel `json:"priority"`
}

// Rank scores every finding and sorts them by descending score. Ties keep
// input order. Missing severities are treated as the default.
func Rank(findings []schemas.Finding) []RankedFinding {
	ranked := make([]RankedFinding, len(findings))
	for i, f := range findings {
		f = withDefaults(f)
		score := Score(f, f.Metadata)
		ranked[i] = RankedFinding{Index: i, Finding: f, Score: score, Priority: LabelFor(score)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// withDefaults fills the fields the scorer expects callers to default.
func withDefaults(f schemas.Finding) schemas.Finding {
	if f.Severity == "" {
		f.Severity = schemas.DefaultSeverity
	}
	return f
}
