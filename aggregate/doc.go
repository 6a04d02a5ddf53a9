// Package aggregate provides the building blocks for event-sourced
// aggregates on top of the eventstore engines.
//
// An aggregate implementation embeds *Base for identity, versioning and
// uncommitted-event bookkeeping, rebuilds its state in Apply, and exposes its
// business rules as command methods that call RecordThat. The generic
// Repository loads aggregates from the newest snapshot plus the event tail
// and persists new events with optimistic concurrency: the stream version the
// aggregate was loaded at is the expected version of the append.
package aggregate
