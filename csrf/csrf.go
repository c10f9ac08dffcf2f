// Package csrf issues and checks anti-forgery tokens bound to a session.
//
// Tokens are 32 random bytes in unpadded base64url. Validation is a
// constant-time comparison; an empty expected or candidate token never
// validates.
package csrf

import "github.com/MrEthical07/authstate/internal"

// HeaderName is the request header browsers send the token in.
const HeaderName = "X-CSRF-Token"

// GenerateToken returns a fresh token. It fails only if the OS entropy
// source fails.
func GenerateToken() (string, error) {
	return internal.NewToken(internal.TokenBytes)
}

// Validate reports whether candidate equals expected.
func Validate(expected, candidate string) bool {
	return internal.ConstantTimeEqual(expected, candidate)
}
