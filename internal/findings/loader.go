// internal/findings/loader.go
package findings

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/xkilldash9x/sast-agent/api/schemas"
)

//go:embed findings.schema.json
var findingsSchema []byte

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// InputError reports a findings file that could not be read or does not have
// the expected shape.
type InputError struct {
	Source string
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid findings input %s: %v", e.Source, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, compileErr = compiler.Compile(findingsSchema)
	})
	return compiledSchema, compileErr
}

// Load reads and validates the findings file at path.
func Load(path string) ([]schemas.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Source: path, Err: err}
	}
	defer f.Close()
	return decode(path, f)
}

// Decode reads a findings document from r.
func Decode(r io.Reader) ([]schemas.Finding, error) {
	return decode("<stdin>", r)
}

func decode(source string, r io.Reader) ([]schemas.Finding, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &InputError{Source: source, Err: err}
	}
	if !json.Valid(data) {
		return nil, &InputError{Source: source, Err: fmt.Errorf("not valid JSON")}
	}

	s, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compile findings schema: %w", err)
	}
	if result := s.ValidateJSON(data); !result.IsValid() {
		return nil, &InputError{Source: source, Err: fmt.Errorf("schema validation failed: %v", result.Errors)}
	}

	var doc schemas.FindingsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &InputError{Source: source, Err: err}
	}

	for i := range doc.Findings {
		applyDefaults(&doc.Findings[i])
	}
	return doc.Findings, nil
}

// applyDefaults fills absent fields. An explicit null is treated as absent, so
// "severity": null scores as Medium rather than as an unrecognised label.
func applyDefaults(f *schemas.Finding) {
	if f.Severity == "" {
		f.Severity = schemas.DefaultSeverity
	}
	if f.Metadata.Exposure == "" {
		f.Metadata.Exposure = schemas.ExposureInternal
	}
}
