// Package store provides SQLite-backed storage for migration runs, their
// action ledgers and the label table.
//
// # Tables
//
//   - runs: one row per completed migration run (rule-set hash, counts, stats)
//   - actions: the append-only ledger, keyed by a content-addressed id
//   - labels: candidate localized names keyed by (reference_id, key)
//
// # Ordering
//
// All ordering uses seq columns (the run's logical clock, or label import
// order), never timestamps. Ledger queries use ORDER BY seq ASC, id ASC
// COLLATE BINARY so results are identical across reads.
//
// # Atomicity
//
// A run and its ledger are written in one transaction: either both exist or
// neither does. Writes use ON CONFLICT DO NOTHING, so persisting the same
// run twice is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
