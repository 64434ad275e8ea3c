// Package rate provides Redis-backed login throttle primitives.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key
// prefixes:
//   - wl:u:  — login per-identifier
//   - wl:ip: — login per-IP
//
// # What this package must NOT do
//
//   - Decide when throttling applies (the Engine owns policy).
//   - Be imported outside the webgate module.
package rate
