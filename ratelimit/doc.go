// Package ratelimit implements sliding-window request limiting keyed by an
// opaque client string.
//
// # Components
//
//   - [SlidingWindow]: in-process limiter holding one timestamp list per key.
//   - [RedisSlidingWindow]: the same algorithm on a Redis sorted set, for
//     deployments that substitute a shared backend.
//   - [Chain]: ordered composition; a request passes only if every limiter
//     admits it, and a rejection releases the slots taken earlier in the chain.
//   - [ProfilePolicies]: preset limits per deployment profile.
//
// # Algorithm
//
// On every call, timestamps at or before now-window are pruned. If fewer
// than MaxRequests remain, now is appended and the request is admitted.
// Otherwise the request is rejected and nothing is recorded.
//
// # Architecture boundaries
//
// This package decides admit/reject and reports quota. It does NOT derive
// client keys from HTTP requests beyond the helpers in keys.go, and it does
// NOT write responses; see the middleware package.
package ratelimit
