// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Backticks are written as \x60 because Go raw strings cannot contain them.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

	// codeBlockRegex matches a fenced block anywhere in the text, with an optional
	// language tag (python, go, java, diff...).
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z0-9_+#.-]*[ \\t]*\\n?(.*?)\\s*\x60\x60\x60")
)

// ParseJSONResponse attempts to parse an LLM response string into a target Go type.
// It handles the usual formatting noise: markdown fences and conversational
// text around the object.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	jsonStringToParse := response

	if strings.HasPrefix(response, "```") {
		if matches := jsonObjectRegex.FindStringSubmatch(response); len(matches) > 1 {
			jsonStringToParse = matches[1]
		}
	} else if !strings.HasPrefix(response, "{") {
		fb := strings.Index(response, "{")
		lb := strings.LastIndex(response, "}")
		if fb != -1 && lb > fb {
			jsonStringToParse = response[fb : lb+1]
		}
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStringToParse), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(jsonStringToParse, 500))
	}
	return &result, nil
}

// LooksLikeJSON reports whether the response plausibly carries a JSON object.
func LooksLikeJSON(response string) bool {
	response = strings.TrimSpace(response)
	return strings.HasPrefix(response, "{") ||
		(strings.HasPrefix(response, "```") && jsonObjectRegex.MatchString(response))
}

// CleanCodeOutput removes a surrounding markdown fence (```python, ```go...) from
// a code string. Text that does not start with a fence is returned trimmed.
func CleanCodeOutput(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if matches := codeBlockRegex.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return content
}

// ExtractCodeBlock finds the first fenced code block anywhere in content. It
// returns the block body and the surrounding text with the block removed.
// ok is false when there is no fence.
func ExtractCodeBlock(content string) (code, rest string, ok bool) {
	loc := codeBlockRegex.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", strings.TrimSpace(content), false
	}
	code = strings.TrimSpace(content[loc[2]:loc[3]])
	rest = strings.TrimSpace(content[:loc[0]] + "\n" + content[loc[1]:])
	return code, rest, true
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Byte truncation; fine for error messages.
	return s[:maxLen] + "..."
}
