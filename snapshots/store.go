package snapshots

import (
	"context"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Store is the persistence contract for snapshots. All eventstore engines
// satisfy it, and CachingStore implements it as a decorator, so callers can
// layer caching in without touching their load and save paths.
type Store interface {
	SaveSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error

	LoadLatestSnapshot(
		ctx context.Context,
		streamID eventstore.StreamIDString,
		maxVersion eventstore.StreamVersionUint,
	) (*eventstore.Snapshot, error)

	DeleteSnapshotsBefore(
		ctx context.Context,
		streamID eventstore.StreamIDString,
		version eventstore.StreamVersionUint,
	) error

	GetSnapshotStats(
		ctx context.Context,
		streamID eventstore.StreamIDString,
	) (eventstore.SnapshotStats, error)
}
