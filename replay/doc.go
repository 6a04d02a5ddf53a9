// Package replay rebuilds read models and projections by streaming the
// store's global event feed through registered handlers.
//
// A replay run pages through the feed in global commit order, fans the
// events of independent streams out to a bounded worker pool, and keeps
// strict per-stream ordering within each worker. After every batch the run
// persists checkpoints: one row per touched stream and one reserved row
// carrying the global feed position and the run status, so an interrupted
// run can resume where it left off. Delivery is at-least-once; handlers must
// be idempotent.
package replay
