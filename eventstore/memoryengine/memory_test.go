package memoryengine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/eventstore/memoryengine"
	"github.com/versioned-streams/eventstore-go/testutil/fixtures"
)

func Test_Append_And_Read_RoundTrip(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	events, _ := fixtures.BuildSomethingHappenedBatch(t, streamID, 3, fakeClock)

	// act
	newVersion, appendErr := es.Append(ctx, streamID, 0, events...)

	// assert
	require.NoError(t, appendErr, "error in appending the events")
	assert.Equal(t, eventstore.StreamVersionUint(3), newVersion)

	eventStream, readErr := es.Read(ctx, streamID, 0, 0)
	require.NoError(t, readErr, "error in reading the stream")
	require.Len(t, eventStream, 3)

	for i, event := range eventStream {
		assert.Equal(t, eventstore.StreamVersionUint(i+1), event.StreamVersion)
		assert.NotZero(t, event.GlobalPosition, "global position must be assigned at commit time")
	}
}

func Test_Append_When_ExpectedVersionIsStale(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	fakeClock = fixtures.GivenStreamWithEvents(t, ctx, es, streamID, 3, fakeClock)
	event := fixtures.BuildSomethingHappened(t, streamID, "stale append", fakeClock)

	// act
	_, appendErr := es.Append(ctx, streamID, 2, event)

	// assert
	assert.ErrorIs(t, appendErr, eventstore.ErrConcurrencyConflict)

	var conflictErr *eventstore.ConcurrencyConflictError
	require.ErrorAs(t, appendErr, &conflictErr)
	assert.Equal(t, eventstore.StreamVersionUint(2), conflictErr.ExpectedVersion)
	assert.Equal(t, eventstore.StreamVersionUint(3), conflictErr.ActualVersion)
}

func Test_Append_When_MultipleWritersRace_ExactlyOneWins(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	fakeClock = fixtures.GivenStreamWithEvents(t, ctx, es, streamID, 1, fakeClock)

	const numWriters = 8
	racingEvents := make(eventstore.StoredEvents, numWriters)
	for i := range racingEvents {
		racingEvents[i] = fixtures.BuildSomethingHappened(t, streamID, "racing append", fakeClock)
	}

	// act
	var successCount, conflictCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(event eventstore.StoredEvent) {
			defer wg.Done()

			_, appendErr := es.Append(ctx, streamID, 1, event)
			switch {
			case appendErr == nil:
				successCount.Add(1)
			case errors.Is(appendErr, eventstore.ErrConcurrencyConflict):
				conflictCount.Add(1)
			}
		}(racingEvents[i])
	}

	wg.Wait()

	// assert
	assert.Equal(t, int32(1), successCount.Load(), "exactly one racing writer must win")
	assert.Equal(t, int32(numWriters-1), conflictCount.Load(), "all other writers must observe a conflict")
}

func Test_Append_With_InvalidInput(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()

	streamID := fixtures.UniqueStreamID("workflow")
	event := fixtures.BuildSomethingHappened(t, streamID, "some event", fakeClock)
	eventForOtherStream := fixtures.BuildSomethingHappened(t, fixtures.UniqueStreamID("other"), "some event", fakeClock)

	t.Run("empty stream id", func(t *testing.T) {
		_, appendErr := es.Append(ctx, "", 0, event)
		assert.ErrorIs(t, appendErr, eventstore.ErrEmptyStreamIDSupplied)
	})

	t.Run("no events", func(t *testing.T) {
		_, appendErr := es.Append(ctx, streamID, 0)
		assert.ErrorIs(t, appendErr, eventstore.ErrNoEventsSupplied)
	})

	t.Run("stream id mismatch", func(t *testing.T) {
		_, appendErr := es.Append(ctx, streamID, 0, eventForOtherStream)
		assert.ErrorIs(t, appendErr, eventstore.ErrStreamIDMismatch)
	})
}

func Test_Read_When_StreamDoesNotExist(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()

	// act
	_, readErr := es.Read(context.Background(), fixtures.UniqueStreamID("missing"), 0, 0)

	// assert
	assert.ErrorIs(t, readErr, eventstore.ErrStreamNotFound)
}

func Test_Read_With_VersionBounds(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	_ = fixtures.GivenStreamWithEvents(t, ctx, es, streamID, 10, fakeClock)

	// act
	eventStream, readErr := es.Read(ctx, streamID, 4, 7)

	// assert
	require.NoError(t, readErr, "error in reading the stream")
	require.Len(t, eventStream, 4)
	assert.Equal(t, eventstore.StreamVersionUint(4), eventStream[0].StreamVersion)
	assert.Equal(t, eventstore.StreamVersionUint(7), eventStream[3].StreamVersion)
}

func Test_ReadAll_PreservesGlobalCommitOrder(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	firstStream := fixtures.UniqueStreamID("workflow")
	secondStream := fixtures.UniqueStreamID("workflow")
	fakeClock = fixtures.GivenStreamWithEvents(t, ctx, es, firstStream, 2, fakeClock)
	fakeClock = fixtures.GivenStreamWithEvents(t, ctx, es, secondStream, 2, fakeClock)
	_, _ = fixtures.GivenMoreEventsWereAppended(t, ctx, es, firstStream, 2, 1, fakeClock)

	// act
	eventStream, readErr := es.ReadAll(ctx, 0, 100)

	// assert
	require.NoError(t, readErr, "error in reading the global feed")
	require.Len(t, eventStream, 5)

	for i := 1; i < len(eventStream); i++ {
		assert.Greater(t, eventStream[i].GlobalPosition, eventStream[i-1].GlobalPosition,
			"interleaved appends must keep the feed strictly ascending")
	}
}

func Test_ReadAll_PaginatesWithPositionCursor(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	_ = fixtures.GivenStreamWithEvents(t, ctx, es, streamID, 5, fakeClock)

	// act
	firstPage, readErr := es.ReadAll(ctx, 0, 3)
	require.NoError(t, readErr, "error in reading the first page")
	require.Len(t, firstPage, 3)

	secondPage, readErr := es.ReadAll(ctx, firstPage[2].GlobalPosition, 3)
	require.NoError(t, readErr, "error in reading the second page")

	// assert
	require.Len(t, secondPage, 2)
}

func Test_Snapshots_SaveLoadDeleteStats(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()

	streamID := fixtures.UniqueStreamID("workflow")

	// arrange
	for _, version := range []eventstore.StreamVersionUint{100, 200, 300} {
		snapshot, buildErr := eventstore.BuildSnapshot(streamID, version, json.RawMessage(`{"status":"running"}`))
		require.NoError(t, buildErr, "error in building a snapshot")
		require.NoError(t, es.SaveSnapshot(ctx, snapshot), "error in saving a snapshot")
	}

	// act + assert: newest snapshot wins, the cap is honored
	loaded, loadErr := es.LoadLatestSnapshot(ctx, streamID, 0)
	require.NoError(t, loadErr, "error in loading the snapshot")
	require.NotNil(t, loaded)
	assert.Equal(t, eventstore.StreamVersionUint(300), loaded.Version)

	capped, loadErr := es.LoadLatestSnapshot(ctx, streamID, 250)
	require.NoError(t, loadErr, "error in loading the capped snapshot")
	require.NotNil(t, capped)
	assert.Equal(t, eventstore.StreamVersionUint(200), capped.Version)

	// act + assert: retention trim
	require.NoError(t, es.DeleteSnapshotsBefore(ctx, streamID, 300), "error in deleting snapshots")

	stats, statsErr := es.GetSnapshotStats(ctx, streamID)
	require.NoError(t, statsErr, "error in getting snapshot stats")
	assert.Equal(t, uint64(1), stats.Count)
	assert.Equal(t, eventstore.StreamVersionUint(300), stats.LatestVersion)
}

func Test_Snapshots_When_NoneExists(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()

	// act
	loaded, loadErr := es.LoadLatestSnapshot(context.Background(), fixtures.UniqueStreamID("missing"), 0)

	// assert
	assert.NoError(t, loadErr, "a missing snapshot is not an error")
	assert.Nil(t, loaded)
}

func Test_Checkpoints_SaveLoadDelete(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()

	runID := uuid.NewString()
	streamID := fixtures.UniqueStreamID("workflow")

	// arrange
	checkpoint, _ := eventstore.BuildReplayCheckpoint(runID, streamID, 10, "running")
	require.NoError(t, es.SaveCheckpoints(ctx, checkpoint), "error in saving the checkpoint")

	// act + assert: upsert advances in place
	advanced, _ := eventstore.BuildReplayCheckpoint(runID, streamID, 25, "completed")
	require.NoError(t, es.SaveCheckpoints(ctx, advanced), "error in updating the checkpoint")

	checkpoints, loadErr := es.LoadCheckpoints(ctx, runID)
	require.NoError(t, loadErr, "error in loading the checkpoints")
	require.Len(t, checkpoints, 1)
	assert.Equal(t, uint64(25), checkpoints[0].LastProcessedVersion)
	assert.Equal(t, "completed", checkpoints[0].Status)

	// act + assert: forget the run
	require.NoError(t, es.DeleteCheckpoints(ctx, runID), "error in deleting the checkpoints")

	checkpoints, loadErr = es.LoadCheckpoints(ctx, runID)
	require.NoError(t, loadErr, "error in loading after delete")
	assert.Empty(t, checkpoints)
}

func Test_Checkpoints_KeepsRunsIsolated(t *testing.T) {
	// setup
	es := memoryengine.NewEventStore()
	ctx := context.Background()

	streamID := fixtures.UniqueStreamID("workflow")
	firstRunID := uuid.NewString()
	secondRunID := uuid.NewString()

	// arrange
	firstRun, _ := eventstore.BuildReplayCheckpoint(firstRunID, streamID, 10, "running")
	secondRun, _ := eventstore.BuildReplayCheckpoint(secondRunID, streamID, 99, "running")
	require.NoError(t, es.SaveCheckpoints(ctx, firstRun), "error in saving the first run's checkpoint")
	require.NoError(t, es.SaveCheckpoints(ctx, secondRun), "error in saving the second run's checkpoint")

	// act
	checkpoints, loadErr := es.LoadCheckpoints(ctx, firstRunID)

	// assert
	require.NoError(t, loadErr, "error in loading the checkpoints")
	require.Len(t, checkpoints, 1)
	assert.Equal(t, uint64(10), checkpoints[0].LastProcessedVersion)
}
