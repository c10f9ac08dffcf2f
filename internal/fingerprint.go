package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the first 16 hex characters of SHA-256(v). It is used
// where a credential must become a map or log key without being stored.
func Fingerprint(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])[:16]
}
