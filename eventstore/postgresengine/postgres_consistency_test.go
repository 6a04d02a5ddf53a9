//go:build integration

package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/eventstore/postgresengine"
	"github.com/versioned-streams/eventstore-go/testutil/config"
	"github.com/versioned-streams/eventstore-go/testutil/fixtures"
)

// setupReplicaEventStore builds an event store with separate primary and replica
// pools. Without a real replica both pools point at the primary, which still
// exercises the consistency-based routing.
func setupReplicaEventStore(t testing.TB) (*postgresengine.EventStore, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)

	cfg, err := config.PostgresFromEnv()
	require.NoError(t, err, "error parsing postgres config from env in test setup")

	primaryConfig, err := cfg.PGXPoolConfig()
	require.NoError(t, err, "error building primary pool config in test setup")
	primary, err := pgxpool.NewWithConfig(context.Background(), primaryConfig)
	require.NoError(t, err, "error connecting primary pool in test setup")
	t.Cleanup(primary.Close)

	replicaConfig, err := cfg.PGXPoolReplicaConfig()
	if err != nil {
		replicaConfig = primaryConfig
	}
	replica, err := pgxpool.NewWithConfig(context.Background(), replicaConfig)
	require.NoError(t, err, "error connecting replica pool in test setup")
	t.Cleanup(replica.Close)

	es, err := postgresengine.NewEventStoreFromPGXPoolWithReplica(primary, replica)
	require.NoError(t, err, "error creating event store")

	return es, ctx
}

func Test_Consistency_DefaultsToStrong_ReadsOwnWrites(t *testing.T) {
	// setup
	es, ctx := setupReplicaEventStore(t)
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	_ = fixtures.GivenStreamWithEvents(t, ctx, es, streamID, 3, fakeClock)

	// act
	eventStream, readErr := es.Read(ctx, streamID, 0, 0)

	// assert
	require.NoError(t, readErr, "error in reading the stream")
	assert.Len(t, eventStream, 3, "a strongly consistent read must see the preceding write")
}

func Test_Consistency_With_StrongConsistencyContext(t *testing.T) {
	// setup
	es, ctx := setupReplicaEventStore(t)
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	_ = fixtures.GivenStreamWithEvents(t, ctx, es, streamID, 2, fakeClock)

	// act
	strongCtx := eventstore.WithStrongConsistency(ctx)
	eventStream, readErr := es.Read(strongCtx, streamID, 0, 0)

	// assert
	require.NoError(t, readErr, "error in reading the stream")
	assert.Len(t, eventStream, 2)
}

func Test_Consistency_With_EventualConsistencyContext(t *testing.T) {
	// setup
	es, ctx := setupReplicaEventStore(t)
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	_ = fixtures.GivenStreamWithEvents(t, ctx, es, streamID, 2, fakeClock)

	// act
	eventualCtx := eventstore.WithEventualConsistency(ctx)
	eventStream, readErr := es.Read(eventualCtx, streamID, 0, 0)

	// assert
	require.NoError(t, readErr, "error in reading through the replica route")
	assert.Len(t, eventStream, 2)
}

func Test_Consistency_Append_AlwaysUsesPrimary(t *testing.T) {
	// setup
	es, ctx := setupReplicaEventStore(t)
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	streamID := fixtures.UniqueStreamID("workflow")
	event := fixtures.BuildSomethingHappened(t, streamID, "write under eventual context", fakeClock)

	// act
	eventualCtx := eventstore.WithEventualConsistency(ctx)
	newVersion, appendErr := es.Append(eventualCtx, streamID, 0, event)

	// assert
	require.NoError(t, appendErr, "writes must succeed regardless of the consistency context")
	assert.Equal(t, eventstore.StreamVersionUint(1), newVersion)
}

func Test_ConsistencyLevel_ContextHelpers(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, eventstore.StrongConsistency, eventstore.GetConsistencyLevel(ctx),
		"strong consistency is the safe default")
	assert.Equal(t, eventstore.StrongConsistency,
		eventstore.GetConsistencyLevel(eventstore.WithStrongConsistency(ctx)))
	assert.Equal(t, eventstore.EventualConsistency,
		eventstore.GetConsistencyLevel(eventstore.WithEventualConsistency(ctx)))

	assert.Equal(t, "strong", eventstore.StrongConsistency.String())
	assert.Equal(t, "eventual", eventstore.EventualConsistency.String())
}
