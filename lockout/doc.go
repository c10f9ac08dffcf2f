// Package lockout counts failed sign-in attempts per identity and reports
// an identity as locked while MaxAttempts or more failures fall inside the
// trailing Duration.
//
// No lock flag is stored. A lock ends on its own as old failures leave the
// window, or immediately when [Tracker.Clear] is called after a successful
// sign-in.
//
// # Architecture boundaries
//
// This package only counts. Whether a locked identity still runs password
// verification, and what the caller is told, is decided by the Engine.
package lockout
