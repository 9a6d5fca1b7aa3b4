// Package store provides SQLite-backed run history.
//
// Each batch run is one row in runs plus one row per fixture in verdicts.
// A run and its verdicts are written in a single transaction, so a reader
// never observes a partial run.
//
// # Ordering
//
// Verdicts are read back ORDER BY seq ASC, which is the order the fixtures
// ran in. Runs are listed newest first by started_at, then id. PruneRuns
// uses the same order to decide which runs to keep.
//
// # Schema Versions
//
// schema.sql creates the version 0 tables. Later changes are appended to
// the migrations list and tracked in PRAGMA user_version; each migration
// runs in its own transaction. A database from a newer build is refused.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
