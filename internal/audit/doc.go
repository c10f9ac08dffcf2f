// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics,
//     drop counts per event type, and a deadline-bounded [Dispatcher.Shutdown].
//   - [Event]: structured audit record with id, timestamp, type, user, IP, reason, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authstate or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
