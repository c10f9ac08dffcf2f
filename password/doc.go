// Package password provides the default password hashing primitive
// (Argon2id in PHC format) and a configurable strength policy.
//
// The Engine treats hashing as an opaque collaborator: any type with
// Hash and Verify can replace [Argon2].
//
// # What this package must NOT do
//
//   - Log or persist plaintext passwords.
//   - Normalize password bytes; input is hashed exactly as given.
package password
