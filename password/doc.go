// Package password implements credential hashing and verification with
// Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads cost parameters from the stored hash, so hashes
// produced under earlier parameter choices keep verifying.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Credential lookup and
// the generic bad-credentials outcome are enforced by the Engine, which also
// runs a dummy verification on unknown identifiers to level response timing.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials — callers supply plaintext and receive
//     hashes.
//   - Import any other webgate package.
//   - Log plaintext secrets or hash parameters at runtime.
package password
