// Package store provides SQLite-backed durable storage for captured game state.
//
// The store holds three logical tables per entity kind plus one shared
// object store:
//   - objects: content-addressed payloads, keyed globally by hash
//   - updates: append-only provenance log (source, timestamp, entity, hash)
//   - updates_unique: merged view, one row per (kind, entity, hash)
//   - captures: raw documents per stream, read back by replay
//
// # Critical Patterns
//
// Idempotent inserts:
//   - Every write uses ON CONFLICT, so duplicate inserts are no-ops, never errors
//   - Two writers racing on the same hash both succeed; one logical row results
//
// Atomic batches:
//   - Objects, log rows and view rows for a batch commit in one transaction
//   - A crash mid-batch cannot leave an update without its backing object
//
// Keyset pagination:
//   - Query orders by (first_seen, entity_id, hash) and resumes strictly
//     after the last-seen key, never by offset
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: log and view rows must reference an object
//   - BEGIN IMMEDIATE: writers queue on the busy timeout instead of failing
//
// All content hashes are computed by internal/hasher over canonical JSON.
package store
