// Package internal contains helper utilities that are intentionally private
// to webgate, including secure random generation for session identifiers and
// remember-me token secrets.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - rate — Redis-backed login throttle primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public webgate API.
//   - Be imported by any package outside the webgate module.
package internal
