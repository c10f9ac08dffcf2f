// Package authstate is the in-memory security-state core of a web
// application: opaque sessions with CSRF tokens, sliding-window request
// limits, failed-login lockout, and API key credentials, coordinated by a
// single [Engine].
//
// Build an Engine once at the composition root with [New] and
// [Builder.Build], call [Engine.Start] to launch background cleanup, and
// call [Engine.Close] after the HTTP server has drained. Engine methods are
// safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// authstate is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([Result], [Stats], [MetricsSnapshot]). Component state
// lives in the session, ratelimit, lockout and apikey packages; audit
// dispatch and helpers live under internal/.
//
// Authentication failures are values, never errors: [Result] carries a
// single generic message for clients and an internal [FailureReason] for
// logs. Errors are reserved for collaborator failures and for use of an
// engine that is not ready.
//
// # What this package must NOT do
//
//   - Return or log a plaintext password, session id, CSRF token, or API key.
//   - Call a UserProvider, APIKeyProvider, logger, or audit sink while
//     holding a component lock.
//   - Retry collaborator calls; retries belong to the caller.
//   - Import any sub-package that re-imports authstate (no import cycles).
package authstate
