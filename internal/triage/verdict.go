// internal/triage/verdict.go
package triage

import (
	"strings"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/llmutil"
)

// falsePositivePrefixes are matched case-insensitively at the start of a response.
var falsePositivePrefixes = []string{"FALSE POSITIVE", "FALSE_POSITIVE", "NOT VALID", "INVALID"}

type structuredVerdict struct {
	Verdict     string `json:"verdict"`
	Explanation string `json:"explanation"`
}

// ParseVerdict classifies a validation response.
//
// A JSON object with a "verdict" field wins. Otherwise a leading false-positive
// token yields FALSE_POSITIVE, and any remaining text containing the exact
// substring "VALID" is VALID. Everything else is UNKNOWN. VALID is never
// returned unless the response carries "VALID" verbatim, in either form.
func ParseVerdict(text string) schemas.ValidationVerdict {
	raw := text
	text = strings.TrimSpace(text)

	if llmutil.LooksLikeJSON(text) {
		if parsed, err := llmutil.ParseJSONResponse[structuredVerdict](text); err == nil && parsed.Verdict != "" {
			return schemas.ValidationVerdict{
				Verdict:     normalizeVerdict(parsed.Verdict),
				Explanation: strings.TrimSpace(parsed.Explanation),
				Raw:         raw,
			}
		}
	}

	lead := strings.TrimLeft(text, "*_#` \t")
	upper := strings.ToUpper(lead)
	for _, prefix := range falsePositivePrefixes {
		if strings.HasPrefix(upper, prefix) {
			return schemas.ValidationVerdict{
				Verdict:     schemas.VerdictFalsePositive,
				Explanation: trimSeparators(lead[len(prefix):]),
				Raw:         raw,
			}
		}
	}

	if strings.Contains(text, "VALID") {
		explanation := text
		if strings.HasPrefix(lead, "VALID") {
			explanation = trimSeparators(lead[len("VALID"):])
		}
		return schemas.ValidationVerdict{Verdict: schemas.VerdictValid, Explanation: explanation, Raw: raw}
	}

	return schemas.ValidationVerdict{Verdict: schemas.VerdictUnknown, Explanation: text, Raw: raw}
}

// normalizeVerdict maps a structured verdict field. False-positive spellings
// match case-insensitively; VALID must be written exactly.
func normalizeVerdict(v string) schemas.Verdict {
	v = strings.TrimSpace(v)
	if v == "VALID" {
		return schemas.VerdictValid
	}
	v = strings.ReplaceAll(strings.ToUpper(v), " ", "_")
	switch v {
	case "FALSE_POSITIVE", "INVALID", "NOT_VALID":
		return schemas.VerdictFalsePositive
	default:
		return schemas.VerdictUnknown
	}
}

// trimSeparators drops the punctuation models put between a verdict and its reason.
func trimSeparators(s string) string {
	return strings.TrimSpace(strings.TrimLeft(s, "*_` \t\r\n-:."))
}
