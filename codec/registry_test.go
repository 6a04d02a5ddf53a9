package codec_test

import (
	"errors"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/codec"
)

const taskCompletedEventType = "research.workflow.task_completed"

// taskCompleted is the current (schema version 2) representation used as a
// test fixture. Version 1 payloads lacked the confidence field.
type taskCompleted struct {
	TaskID     string    `json:"task_id"`
	Summary    string    `json:"summary"`
	Confidence float64   `json:"confidence"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e taskCompleted) EventType() string        { return taskCompletedEventType }
func (e taskCompleted) SchemaVersion() uint      { return 2 }
func (e taskCompleted) HasOccurredAt() time.Time { return e.OccurredAt }

func decodeTaskCompleted(payloadJSON []byte) (codec.DomainEvent, error) {
	event := taskCompleted{}
	if err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &event); err != nil {
		return nil, err
	}

	return event, nil
}

func upcastTaskCompletedV1(payloadJSON []byte) ([]byte, error) {
	fields := make(map[string]any)
	if err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &fields); err != nil {
		return nil, err
	}

	fields["confidence"] = 0.5

	return jsoniter.ConfigFastest.Marshal(fields)
}

func Test_RegisterDecoder_With_Invalid_Input(t *testing.T) {
	tests := []struct {
		name          string
		eventType     string
		schemaVersion uint
		decode        codec.DecodeFunc
		expectedErr   error
	}{
		{
			name:          "empty event type",
			eventType:     "",
			schemaVersion: 1,
			decode:        decodeTaskCompleted,
			expectedErr:   codec.ErrEmptyEventTypeSupplied,
		},
		{
			name:          "zero schema version",
			eventType:     taskCompletedEventType,
			schemaVersion: 0,
			decode:        decodeTaskCompleted,
			expectedErr:   codec.ErrZeroSchemaVersionSupplied,
		},
		{
			name:          "nil decoder",
			eventType:     taskCompletedEventType,
			schemaVersion: 1,
			decode:        nil,
			expectedErr:   codec.ErrNilDecoderSupplied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// setup
			registry := codec.NewRegistry()

			// act
			err := registry.RegisterDecoder(tt.eventType, tt.schemaVersion, tt.decode)

			// assert
			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func Test_RegisterDecoder_When_The_Same_Pair_Is_Registered_Twice(t *testing.T) {
	// setup
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 2, decodeTaskCompleted))

	// act
	err := registry.RegisterDecoder(taskCompletedEventType, 2, decodeTaskCompleted)

	// assert
	assert.ErrorIs(t, err, codec.ErrDecoderAlreadyRegistered)
}

func Test_RegisterUpcaster_When_The_Same_Step_Is_Registered_Twice(t *testing.T) {
	// setup
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterUpcaster(taskCompletedEventType, 1, upcastTaskCompletedV1))

	// act
	err := registry.RegisterUpcaster(taskCompletedEventType, 1, upcastTaskCompletedV1)

	// assert
	assert.ErrorIs(t, err, codec.ErrUpcasterAlreadyRegistered)
}

func Test_Serialize_When_The_Event_Schema_Is_Registered(t *testing.T) {
	// setup
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 2, decodeTaskCompleted))

	occurredAt := time.Unix(0, 0).UTC()
	event := taskCompleted{TaskID: "task-1", Summary: "findings", Confidence: 0.9, OccurredAt: occurredAt}

	// act
	payloadJSON, err := registry.Serialize(event)

	// assert
	require.NoError(t, err)
	assert.True(t, jsoniter.ConfigFastest.Valid(payloadJSON))

	roundTripped, err := registry.Deserialize(taskCompletedEventType, 2, payloadJSON)
	require.NoError(t, err)
	assert.Equal(t, event, roundTripped)
}

func Test_Serialize_When_The_Event_Schema_Is_Not_Registered(t *testing.T) {
	// setup
	registry := codec.NewRegistry()

	// act
	_, err := registry.Serialize(taskCompleted{TaskID: "task-1"})

	// assert
	assert.ErrorIs(t, err, codec.ErrSchemaUnknown)
}

func Test_Deserialize_When_The_Stored_Schema_Needs_Upcasting(t *testing.T) {
	// setup
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 2, decodeTaskCompleted))
	require.NoError(t, registry.RegisterUpcaster(taskCompletedEventType, 1, upcastTaskCompletedV1))

	// arrange: a payload as schema version 1 wrote it, without confidence
	payloadV1 := []byte(`{"task_id":"task-1","summary":"findings","occurred_at":"1970-01-01T00:00:00Z"}`)

	// act
	event, err := registry.Deserialize(taskCompletedEventType, 1, payloadV1)

	// assert
	require.NoError(t, err)
	completed, ok := event.(taskCompleted)
	require.True(t, ok)
	assert.Equal(t, "task-1", completed.TaskID)
	assert.InDelta(t, 0.5, completed.Confidence, 0.0001)
}

func Test_Deserialize_When_The_Upcast_Chain_Spans_Multiple_Versions(t *testing.T) {
	// setup: decoder only at version 3, upcasters for 1->2 and 2->3
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 3, decodeTaskCompleted))
	require.NoError(t, registry.RegisterUpcaster(taskCompletedEventType, 1, upcastTaskCompletedV1))
	require.NoError(t, registry.RegisterUpcaster(taskCompletedEventType, 2, func(payloadJSON []byte) ([]byte, error) {
		fields := make(map[string]any)
		if err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &fields); err != nil {
			return nil, err
		}
		fields["summary"] = "migrated: " + fields["summary"].(string)

		return jsoniter.ConfigFastest.Marshal(fields)
	}))

	payloadV1 := []byte(`{"task_id":"task-1","summary":"findings","occurred_at":"1970-01-01T00:00:00Z"}`)

	// act
	event, err := registry.Deserialize(taskCompletedEventType, 1, payloadV1)

	// assert
	require.NoError(t, err)
	completed, ok := event.(taskCompleted)
	require.True(t, ok)
	assert.Equal(t, "migrated: findings", completed.Summary)
	assert.InDelta(t, 0.5, completed.Confidence, 0.0001)
}

func Test_Deserialize_When_The_Upcast_Chain_Has_A_Gap(t *testing.T) {
	// setup: decoder at version 3 but no migration step from version 1
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 3, decodeTaskCompleted))
	require.NoError(t, registry.RegisterUpcaster(taskCompletedEventType, 2, upcastTaskCompletedV1))

	// act
	_, err := registry.Deserialize(taskCompletedEventType, 1, []byte(`{"task_id":"task-1"}`))

	// assert
	assert.ErrorIs(t, err, codec.ErrSchemaUnknown)

	var schemaErr *codec.SchemaUnknownError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, taskCompletedEventType, schemaErr.EventType)
	assert.Equal(t, uint(1), schemaErr.SchemaVersion, "the error should carry the originally stored version")
}

func Test_Deserialize_When_The_Event_Type_Is_Unknown(t *testing.T) {
	// setup
	registry := codec.NewRegistry()

	// act
	_, err := registry.Deserialize("research.workflow.unknown", 1, []byte(`{}`))

	// assert
	assert.ErrorIs(t, err, codec.ErrSchemaUnknown)
}

func Test_Deserialize_When_The_Decoder_Rejects_The_Payload(t *testing.T) {
	// setup
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 2, decodeTaskCompleted))

	// act
	_, err := registry.Deserialize(taskCompletedEventType, 2, []byte(`{"task_id":`))

	// assert
	assert.ErrorIs(t, err, codec.ErrDeserializationFailed)
}

func Test_Deserialize_When_An_Upcast_Step_Fails(t *testing.T) {
	// setup
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 2, decodeTaskCompleted))
	require.NoError(t, registry.RegisterUpcaster(taskCompletedEventType, 1, func([]byte) ([]byte, error) {
		return nil, errors.New("migration rejected the payload")
	}))

	// act
	_, err := registry.Deserialize(taskCompletedEventType, 1, []byte(`{"task_id":"task-1"}`))

	// assert
	assert.ErrorIs(t, err, codec.ErrUpcastFailed)
}

func Test_LatestSchemaVersion(t *testing.T) {
	// setup
	registry := codec.NewRegistry()
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 1, decodeTaskCompleted))
	require.NoError(t, registry.RegisterDecoder(taskCompletedEventType, 2, decodeTaskCompleted))

	// act
	latest, err := registry.LatestSchemaVersion(taskCompletedEventType)

	// assert
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	_, err = registry.LatestSchemaVersion("research.workflow.unknown")
	assert.ErrorIs(t, err, codec.ErrSchemaUnknown)
}
