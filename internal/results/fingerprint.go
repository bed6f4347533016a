package results

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/xkilldash9x/sast-agent/api/schemas"
)

// Fingerprint returns the hex SHA-256 of the RFC 8785 canonical JSON of f, so
// two findings with the same content hash identically regardless of field order
// in the input file.
func Fingerprint(f schemas.Finding) (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("marshal finding: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize finding: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
