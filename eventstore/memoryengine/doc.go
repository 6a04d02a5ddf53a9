// Package memoryengine provides an in-process implementation of the event store.
//
// The engine keeps events, snapshots, and replay checkpoints in memory, guarded
// by a single read-write mutex. The per-stream compare-and-swap happens under the
// write lock, so two concurrent appends with the same expected version resolve
// exactly like they do on the SQL engines: one wins, the other receives a
// concurrency conflict carrying the actual version.
//
// It serves single-node deployments, demos, and tests that need the full store
// contract without a database.
package memoryengine
