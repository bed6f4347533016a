// internal/codecontext/static.go
package codecontext

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MapProvider serves snippets from an in-memory map.
type MapProvider map[string]string

func (m MapProvider) Snippet(_ context.Context, path string) (string, error) {
	s, ok := m[path]
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

// LoadMappingFile reads a path-to-snippet mapping from a YAML or JSON file.
// Both are accepted since JSON is valid YAML.
//
//	app/payment_service.py: |
//	  def process_payment(card_number, expiry_date):
//	      ...
func LoadMappingFile(path string) (MapProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context mapping %s: %w", path, err)
	}
	m := make(map[string]string)
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse context mapping %s: %w", path, err)
	}
	return MapProvider(m), nil
}
