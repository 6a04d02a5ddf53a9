package fixtures

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// SomethingHappenedEventType is the event type of the generic fixture event.
const SomethingHappenedEventType = "test.something_happened"

// SomethingHappenedSchemaVersion is the schema version of the fixture event.
const SomethingHappenedSchemaVersion = uint(1)

// SomethingHappenedPayload is the JSON payload of the fixture event.
type SomethingHappenedPayload struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Appender is the slice of the engine contract the Given* helpers need.
type Appender interface {
	Append(
		ctx context.Context,
		streamID eventstore.StreamIDString,
		expectedVersion eventstore.StreamVersionUint,
		events ...eventstore.StoredEvent,
	) (eventstore.StreamVersionUint, error)
}

// BuildSomethingHappened builds a fixture event for the given stream with a
// fresh correlation ID.
func BuildSomethingHappened(
	t testing.TB,
	streamID eventstore.StreamIDString,
	description string,
	occurredAt time.Time,
) eventstore.StoredEvent {

	t.Helper()

	payload := SomethingHappenedPayload{
		ID:          uuid.NewString(),
		Description: description,
	}

	payloadJSON, marshalErr := jsoniter.ConfigFastest.Marshal(payload)
	require.NoError(t, marshalErr, "marshaling fixture payload failed")

	event, buildErr := eventstore.BuildStoredEventWithoutCausation(
		streamID,
		SomethingHappenedEventType,
		SomethingHappenedSchemaVersion,
		payloadJSON,
		occurredAt,
		uuid.NewString(),
	)
	require.NoError(t, buildErr, "building fixture event failed")

	return event
}

// BuildSomethingHappenedBatch builds count fixture events for the given stream,
// advancing the clock by one second per event. It returns the events and the
// advanced clock.
func BuildSomethingHappenedBatch(
	t testing.TB,
	streamID eventstore.StreamIDString,
	count int,
	fakeClock time.Time,
) (eventstore.StoredEvents, time.Time) {

	t.Helper()

	events := make(eventstore.StoredEvents, 0, count)
	for i := 0; i < count; i++ {
		events = append(events, BuildSomethingHappened(
			t, streamID, fmt.Sprintf("event %d", i+1), fakeClock))
		fakeClock = fakeClock.Add(time.Second)
	}

	return events, fakeClock
}

// GivenStreamWithEvents appends count fixture events to the stream, expecting
// it to be fresh, and returns the advanced clock.
func GivenStreamWithEvents(
	t testing.TB,
	ctx context.Context,
	es Appender,
	streamID eventstore.StreamIDString,
	count int,
	fakeClock time.Time,
) time.Time {

	t.Helper()

	events, advancedClock := BuildSomethingHappenedBatch(t, streamID, count, fakeClock)

	newVersion, appendErr := es.Append(ctx, streamID, 0, events...)
	require.NoError(t, appendErr, "appending fixture events failed")
	require.Equal(t, eventstore.StreamVersionUint(count), newVersion, "unexpected stream version after fixture append")

	return advancedClock
}

// GivenMoreEventsWereAppended appends count fixture events on top of the
// stream's current version and returns the new version and the advanced clock.
func GivenMoreEventsWereAppended(
	t testing.TB,
	ctx context.Context,
	es Appender,
	streamID eventstore.StreamIDString,
	currentVersion eventstore.StreamVersionUint,
	count int,
	fakeClock time.Time,
) (eventstore.StreamVersionUint, time.Time) {

	t.Helper()

	events, advancedClock := BuildSomethingHappenedBatch(t, streamID, count, fakeClock)

	newVersion, appendErr := es.Append(ctx, streamID, currentVersion, events...)
	require.NoError(t, appendErr, "appending fixture events failed")

	return newVersion, advancedClock
}

// UniqueStreamID returns a stream ID that does not collide across test runs
// against a shared database.
func UniqueStreamID(prefix string) eventstore.StreamIDString {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
