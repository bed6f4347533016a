// internal/triage/prompts.go
package triage

import "fmt"

// The completion service receives a single user message; the persona lives in
// the prompt itself.

const validationInstruction = `Respond with 'VALID' if it's a real issue or 'FALSE POSITIVE' otherwise. Provide a brief explanation.`

const structuredVerdictInstruction = `Respond with a JSON object of the form {"verdict": "VALID" | "FALSE_POSITIVE", "explanation": "<brief explanation>"}.`

const remediationInstruction = `Provide only the corrected code snippet and a 1-line explanation.`

// buildValidationPrompt asks whether the finding is real, reachable and exploitable.
func buildValidationPrompt(snippet, description string, structured bool) string {
	instruction := validationInstruction
	if structured {
		instruction = structuredVerdictInstruction
	}
	return fmt.Sprintf(`
You are a security expert AI agent. Given the following code snippet and vulnerability description, validate if the vulnerability is real, reachable, and exploitable.

Code:
%s

Finding:
%s

%s
`, snippet, description, instruction)
}

// buildRemediationPrompt asks for a secure rewrite of the snippet.
func buildRemediationPrompt(snippet, description string) string {
	return fmt.Sprintf(`
You are a senior security engineer AI. Given the following vulnerable code snippet and vulnerability description, suggest a secure fix.

Code:
%s

Finding:
%s

%s
`, snippet, description, remediationInstruction)
}
