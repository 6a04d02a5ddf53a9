// Package sqliteengine implements the event store engine on SQLite via
// database/sql and the modernc.org/sqlite driver.
//
// The engine covers the same contract as the Postgres engine: per-stream
// versioned append with optimistic concurrency, ranged and global-feed reads,
// snapshot persistence and replay checkpoints. It targets single-node
// deployments where an embedded database is preferable to a server; the
// optimistic-concurrency check runs inside a transaction, which SQLite's
// single-writer model makes race-free.
//
// InitSchema creates the required tables and indexes in place, so a fresh
// (or in-memory) database is usable without external migration tooling.
package sqliteengine
