// Package authz evaluates request paths against an ordered authorization
// rule list with first-match-wins semantics.
//
// # Ordering contract
//
// Rules are applied strictly in declaration order and evaluation stops at
// the first pattern match. Specific patterns therefore must precede broader
// wildcards ("/admin/pay" before "/admin/**"); [Lint] detects violations so
// the Builder can reject them, but the matcher itself never infers or
// reorders.
//
// # What this package must NOT do
//
//   - Resolve principals or touch session state (it sees only a [Subject]).
//   - Import webgate or any sibling package.
package authz
