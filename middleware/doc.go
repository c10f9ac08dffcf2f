// Package middleware adapts an [authstate.Engine] to net/http.
//
// # Adapters
//
//   - [RateLimit] runs Engine.AllowRequest and writes X-RateLimit-* headers,
//     or 429 with Retry-After.
//   - [RequireSession] resolves the session cookie via Engine.ValidateSession.
//   - [RequireCSRF] checks the X-CSRF-Token header on unsafe methods.
//   - [RequireAPIKey] authenticates X-API-Key or a Bearer credential.
//   - [SecurityHeaders] sets CSP, HSTS and related hardening headers for the
//     configured deployment profile.
//
// Each adapter stores what it resolved in the request context; read it back
// with [SessionFromContext] or [APIKeyResultFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every decision
// is the Engine's; the adapters only map outcomes to status codes.
//
// # What this package must NOT do
//
//   - Touch session, lockout or limiter state directly.
//   - Echo credentials, session IDs or CSRF tokens into responses or logs.
//   - Trust X-Forwarded-For or X-Real-IP unless Security.TrustProxyHeaders is set.
package middleware
