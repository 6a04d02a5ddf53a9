// Package workflowstatus maintains an in-memory read model with one row per
// research workflow, fed by replaying the workflow event streams.
//
// The projection implements replay.Handler and is safe for the concurrent
// per-stream delivery the replay service uses. Delivery is at-least-once, so
// every row remembers the last stream version it applied and silently drops
// redelivered events.
package workflowstatus
