// Package session implements the Redis-backed session registry: record
// storage, per-principal concurrency limits, idle and absolute expiry, and
// the saved-request cache.
//
// # Storage layout
//
// Each session is one Redis string at <prefix>:s:<id> holding the binary
// [Record] blob, with the idle timeout carried as the key's TTL. A ZSET at
// <prefix>:u:<username>, scored by creation time, indexes a principal's
// live sessions and is what the concurrency limit counts against.
//
// # Concurrency limit
//
// Create runs a Lua script that prunes dead index entries, counts live
// sessions, and either evicts the oldest ([EvictOldest]) or refuses the
// login ([RejectNew]) before storing the new record. The check and the
// insert are one atomic script, so two racing logins cannot both slip
// under the limit.
//
// # What this package must NOT do
//
//   - Verify credentials or mint session IDs (the Engine does both).
//   - Evaluate authorization rules.
//   - Import any other webgate package.
package session
