// Package session persists per-identity terminal state between stateless
// invocations.
//
// Each identity owns two pieces of state: the last working directory and
// an append-only transcript of command output. The Store interface exposes
// both, plus a management surface for listing, removal and trimming.
//
// Backends:
//   - FSStore: two flat files per identity under a scratch directory
//   - MemoryStore: mutex-guarded map, for tests and single instances
//   - SQLiteStore: GORM over SQLite, durable across restarts
//
// Guarantees:
//   - Reads of missing state return zero values, never errors
//   - Appends are atomic per block; concurrent blocks never interleave
//   - Working directory writes are last-writer-wins
//   - Distinct identities never share state (see Key)
//
// The Janitor runs retention on top of any Store: idle sessions are
// pruned after a TTL and oversized transcripts trimmed to a byte cap,
// with removed bytes optionally gzip-archived.
package session
