// Package output writes pipeline artifacts with content-hash tracking, so a
// re-run producing identical data touches nothing on disk.
package output

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeDataHash returns the SHA-256 hex digest of data's canonical JSON
// form. The value is round-tripped through a generic decode so object keys
// serialize sorted: two maps with the same entries in different insertion
// order hash identically.
func ComputeDataHash(data interface{}) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("canonicalize data: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("marshal canonical form: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
