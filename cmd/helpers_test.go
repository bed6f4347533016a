// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/sast-agent/internal/config"
	"github.com/xkilldash9x/sast-agent/internal/llmclient"
	"github.com/xkilldash9x/sast-agent/internal/observability"
)

// silenceLogger installs a discarding global logger for the test.
func silenceLogger(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	observability.Initialize(config.LoggerConfig{Level: "fatal", Format: "json"}, zapcore.AddSync(io.Discard))
	t.Cleanup(observability.ResetForTest)
}

// executeCommand runs a fresh command tree and returns what it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	silenceLogger(t)

	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// writeTestConfig points both tiers at a single OpenAI-compatible model served
// from endpoint, without retries or breaker.
func writeTestConfig(t *testing.T, endpoint string) string {
	t.Helper()
	return writeTempFile(t, "config.yaml", fmt.Sprintf(`
logger:
  level: fatal
llm:
  default_fast_model: test-model
  default_powerful_model: test-model
  models:
    test-model:
      provider: openai
      model: gpt-test
      endpoint: %s
      api_timeout: 5s
resilience:
  call_timeout: 10s
  max_retries: 0
  breaker:
    enabled: false
`, endpoint))
}

const testFindings = `{
  "findings": [
    {
      "file_path": "payment_service.py",
      "description": "SQL Injection in process_payment",
      "severity": "Critical",
      "metadata": {"exposure": "external", "critical_asset": true}
    },
    {
      "file_path": "util.py",
      "description": "Weak hash in test helper",
      "severity": "Low"
    }
  ]
}`

// fakeCompletionServer is an OpenAI-compatible endpoint. respond maps the user
// prompt to the completion text; a returned status other than 200 is sent as
// an error response.
type fakeCompletionServer struct {
	*httptest.Server
	mu      sync.Mutex
	prompts []string
}

func newFakeCompletionServer(t *testing.T, respond func(prompt string) (int, string)) *fakeCompletionServer {
	t.Helper()
	f := &fakeCompletionServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload llmclient.OpenAIRequestPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		prompt := payload.Messages[len(payload.Messages)-1].Content

		f.mu.Lock()
		f.prompts = append(f.prompts, prompt)
		f.mu.Unlock()

		status, text := respond(prompt)
		if status != http.StatusOK {
			http.Error(w, text, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(llmclient.OpenAIResponsePayload{
			Choices: []llmclient.OpenAIChoice{{
				Message:      llmclient.OpenAIMessage{Role: "assistant", Content: text},
				FinishReason: "stop",
			}},
		})
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeCompletionServer) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// triageResponder confirms every finding except the weak-hash one.
func triageResponder(prompt string) (int, string) {
	if strings.Contains(prompt, "validate if the vulnerability is real") {
		if strings.Contains(prompt, "Weak hash") {
			return http.StatusOK, "FALSE POSITIVE - only used in tests"
		}
		return http.StatusOK, "VALID - user input reaches the query"
	}
	return http.StatusOK, "Use parameterized queries.\n```python\ncursor.execute(sql, (amount,))\n```"
}
