package internal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
)

// TokenBytes is the entropy, in bytes, of session identifiers, CSRF tokens,
// and API key suffixes (256 bits).
const TokenBytes = 32

var errTokenSize = errors.New("token size must be > 0")

// Reader is the entropy source. Tests may replace it to simulate failure.
var Reader io.Reader = rand.Reader

// NewToken returns n random bytes encoded as unpadded base64url.
func NewToken(n int) (string, error) {
	if n <= 0 {
		return "", errTokenSize
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(Reader, raw); err != nil {
		return "", err
	}

	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ConstantTimeEqual compares two strings without early exit on the first
// differing byte. Empty inputs never match.
func ConstantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
