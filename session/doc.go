// Package session provides the in-memory login session store.
//
// # Model
//
// Each [Session] has a 256-bit random ID and its own CSRF token. Sessions
// expire at ExpiresAt; expiry is applied lazily on read and in bulk by a
// periodic sweep. Each user holds at most MaxSessionsPerUser sessions;
// creating one more evicts the oldest by creation time.
//
// # Concurrency
//
// One mutex guards both the session map and the per-user index, and every
// compound operation (create and evict, read and expire, invalidate all for
// a user) runs inside a single critical section. Eviction hooks and log
// lines run after the lock is released.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT verify
// passwords, count failed logins, or decide what a caller is told; those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authstate (no upward imports).
//   - Persist sessions outside process memory.
//   - Log session IDs or CSRF tokens in clear.
package session
