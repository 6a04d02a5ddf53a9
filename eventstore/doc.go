// Package eventstore provides the core types and abstractions for an
// event-sourced aggregate store with per-stream versioned event logs.
//
// This package defines the storage representation of events and snapshots,
// the error taxonomy shared by all store engines, and the dependency-free
// observability interfaces engines are instrumented with.
//
// Key types:
//   - StoredEvent: the immutable storage representation of one domain event,
//     placed by StreamVersion inside its stream and by GlobalPosition in the
//     store-wide commit order
//   - Snapshot: a compacted state capture at a given stream version
//   - ReplayCheckpoint: a persisted progress marker of a replay run
//   - ConcurrencyConflictError: the typed optimistic-concurrency failure,
//     matching errors.Is(err, ErrConcurrencyConflict)
//
// Engines implementing the storage contract live in the subpackages
// postgresengine, sqliteengine, and memoryengine.
//
// Common usage pattern:
//
//	event, err := eventstore.BuildStoredEvent(
//		streamID, "research.workflow.created", 2, payload, time.Now(), correlationID, causationID)
//	if err != nil {
//		// handle error
//	}
//
//	newVersion, err := store.Append(ctx, streamID, expectedVersion, event)
//	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
//		// reload the aggregate at the conflict's ActualVersion and retry
//	}
package eventstore
