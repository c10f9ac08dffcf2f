// Package internal contains helper utilities private to authstate,
// including secure random generation and credential fingerprinting.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - janitor: background ticker loops for expiry sweeps
//
// # What this package must NOT do
//
//   - Export types that appear in the public authstate API.
//   - Be imported by any package outside the authstate module.
package internal
