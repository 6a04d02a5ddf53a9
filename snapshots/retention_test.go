package snapshots_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/eventstore/memoryengine"
	"github.com/versioned-streams/eventstore-go/snapshots"
)

func Test_NewRetention_With_Invalid_Input(t *testing.T) {
	// setup
	store := memoryengine.NewEventStore()
	policy := snapshots.DefaultPolicy()

	// act + assert
	_, err := snapshots.NewRetention(nil, policy)
	assert.ErrorIs(t, err, snapshots.ErrNilStoreSupplied)

	_, err = snapshots.NewRetention(store, snapshots.Policy{})
	assert.ErrorIs(t, err, snapshots.ErrZeroFrequencySupplied)

	_, err = snapshots.NewRetention(store, policy, snapshots.WithRetainedSnapshots(0))
	assert.ErrorIs(t, err, snapshots.ErrZeroRetainedSupplied)

	_, err = snapshots.NewRetention(store, policy, snapshots.WithCleanupInterval(0))
	assert.ErrorIs(t, err, snapshots.ErrZeroIntervalSupplied)
}

func Test_Retention_CleanupStream_When_The_Stream_Holds_Too_Many_Snapshots(t *testing.T) {
	// setup: snapshots at every 100-event boundary up to version 1200
	store := memoryengine.NewEventStore()
	ctx := context.Background()

	for version := uint(100); version <= 1200; version += 100 {
		require.NoError(t, store.SaveSnapshot(ctx, mustBuildSnapshot(t, "workflow-1", version)))
	}

	policy, err := snapshots.NewPolicy(100)
	require.NoError(t, err)

	retention, err := snapshots.NewRetention(store, policy, snapshots.WithRetainedSnapshots(10))
	require.NoError(t, err)

	// act
	require.NoError(t, retention.CleanupStream(ctx, "workflow-1"))

	// assert: the newest 10 captures survive, versions 100 and 200 are pruned
	stats, err := store.GetSnapshotStats(ctx, "workflow-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), stats.Count)
	assert.Equal(t, uint(1200), stats.LatestVersion)

	oldest, err := store.LoadLatestSnapshot(ctx, "workflow-1", 299)
	require.NoError(t, err)
	assert.Nil(t, oldest, "snapshots below the cutoff are gone")
}

func Test_Retention_CleanupStream_When_The_Stream_Is_Within_The_Retention_Count(t *testing.T) {
	// setup
	store := memoryengine.NewEventStore()
	ctx := context.Background()

	for version := uint(100); version <= 300; version += 100 {
		require.NoError(t, store.SaveSnapshot(ctx, mustBuildSnapshot(t, "workflow-1", version)))
	}

	retention, err := snapshots.NewRetention(store, snapshots.DefaultPolicy(), snapshots.WithRetainedSnapshots(10))
	require.NoError(t, err)

	// act
	require.NoError(t, retention.CleanupStream(ctx, "workflow-1"))

	// assert: nothing was deleted
	stats, err := store.GetSnapshotStats(ctx, "workflow-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Count)
}

func Test_Retention_Background_Task_Cleans_Tracked_Streams(t *testing.T) {
	// setup
	store := memoryengine.NewEventStore()
	ctx := context.Background()

	for version := uint(100); version <= 500; version += 100 {
		require.NoError(t, store.SaveSnapshot(ctx, mustBuildSnapshot(t, "workflow-1", version)))
	}

	policy, err := snapshots.NewPolicy(100)
	require.NoError(t, err)

	retention, err := snapshots.NewRetention(store, policy,
		snapshots.WithRetainedSnapshots(2),
		snapshots.WithCleanupInterval(10*time.Millisecond))
	require.NoError(t, err)

	retention.Track("workflow-1")

	// act
	retention.Start(ctx)

	// assert: the periodic task prunes down to the retention count
	assert.Eventually(t, func() bool {
		stats, statsErr := store.GetSnapshotStats(ctx, "workflow-1")

		return statsErr == nil && stats.Count == 2
	}, time.Second, 10*time.Millisecond)

	retention.Stop()
}

func Test_Retention_Stop_Without_Start(t *testing.T) {
	// setup
	retention, err := snapshots.NewRetention(memoryengine.NewEventStore(), snapshots.DefaultPolicy())
	require.NoError(t, err)

	// act + assert: must not block or panic
	retention.Stop()
	retention.Stop()
}
