// Package snapshots layers caching, cadence and retention concerns on top of
// the snapshot persistence the eventstore engines provide.
//
// Snapshots are an optimization: a CachingStore keeps the hot "latest snapshot
// per stream" lookups out of the database, a Policy decides when a stream has
// accumulated enough new events to be worth snapshotting, and a Retention
// component prunes old snapshots so streams do not hoard stale captures. The
// event log remains the only source of truth throughout; every component here
// degrades to plain store access when the optimization is unavailable.
package snapshots
