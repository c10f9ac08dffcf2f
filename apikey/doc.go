// Package apikey generates, hashes, and checks long-lived API credentials.
//
// A credential is the prefix "sk_harbor_" followed by 32 random bytes in
// unpadded base64url. Only its HMAC-SHA256 digest is ever stored; the
// plaintext is returned once by [Registry.Generate].
//
// # Components
//
//   - [Registry]: generation, format check, hashing, constant-time verify.
//   - [Key]: stored record with validity rules (active, unexpired, unrevoked).
//   - [MemoryStore]: process-local Key storage for tests and small deployments.
//
// # What this package must NOT do
//
//   - Log or persist plaintext credentials.
//   - Decide what the caller is told on failure (the Engine does).
package apikey
