// Package rememberme implements rotating remember-me token series with
// replay detection.
//
// # Token scheme
//
// A token is a (series, secret) pair. The series identifies the device's
// grant and survives across uses; the secret is single-use and replaced on
// every successful validation. Only a SHA-256 digest of the secret is
// stored, so a Redis snapshot cannot be turned into usable tokens.
//
// Presenting a live series with a stale secret means two parties hold
// tokens from the same series, which only happens after theft. Validate
// destroys the series in that case and reports [ErrReplay]; both the thief
// and the legitimate holder must log in with credentials again.
//
// # What this package must NOT do
//
//   - Create sessions or evaluate authorization (the Engine consumes the
//     validated username).
//   - Store plaintext secrets.
package rememberme
