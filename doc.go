// Package webgate implements a form-login authentication and authorization
// pipeline: ordered URL rules with first-match-wins evaluation, credential
// login with session-fixation protection and concurrent-session limits,
// rotating remember-me tokens with replay detection, and deterministic
// translation of every failure into a redirect action.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// webgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Principal, Authentication, Resolution). Rule evaluation
// lives in authz/, session persistence in session/, remember-me state in
// rememberme/, HTTP adaptation in middleware/. Internal coordination
// (token generation, audit dispatch, login throttling) lives under internal/
// and is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store internals, or encoding details in its
//     public API.
//   - Render pages or own routing; it only decides and redirects.
//   - Import any sub-package that re-imports webgate (no import cycles).
package webgate
