package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

//nolint:funlen
func Test_BuildStoredEvent_ErrorCases(t *testing.T) {
	validTime := time.Now()
	validPayloadJSON := []byte(`{"key": "value"}`)

	tests := []struct {
		name          string
		streamID      string
		eventType     string
		schemaVersion uint
		payloadJSON   []byte
		expectedErr   error
	}{
		{
			name:          "empty stream id",
			streamID:      "",
			eventType:     "TestEvent",
			schemaVersion: 1,
			payloadJSON:   validPayloadJSON,
			expectedErr:   ErrEmptyStreamIDSupplied,
		},
		{
			name:          "empty event type",
			streamID:      "workflow-123",
			eventType:     "",
			schemaVersion: 1,
			payloadJSON:   validPayloadJSON,
			expectedErr:   ErrEmptyEventTypeSupplied,
		},
		{
			name:          "zero schema version",
			streamID:      "workflow-123",
			eventType:     "TestEvent",
			schemaVersion: 0,
			payloadJSON:   validPayloadJSON,
			expectedErr:   ErrZeroSchemaVersionSupplied,
		},
		{
			name:          "invalid payload JSON",
			streamID:      "workflow-123",
			eventType:     "TestEvent",
			schemaVersion: 1,
			payloadJSON:   []byte(`{"invalid": json}`),
			expectedErr:   ErrInvalidPayloadJSON,
		},
		{
			name:          "empty payload JSON",
			streamID:      "workflow-123",
			eventType:     "TestEvent",
			schemaVersion: 1,
			payloadJSON:   []byte(``),
			expectedErr:   ErrInvalidPayloadJSON,
		},
		{
			name:          "nil payload JSON",
			streamID:      "workflow-123",
			eventType:     "TestEvent",
			schemaVersion: 1,
			payloadJSON:   nil,
			expectedErr:   ErrInvalidPayloadJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildStoredEvent(
				tt.streamID, tt.eventType, tt.schemaVersion, tt.payloadJSON, validTime, "corr-1", "cause-1")
			assert.ErrorContains(t, err, tt.expectedErr.Error())
		})
	}
}

func Test_BuildStoredEvent_Success(t *testing.T) {
	streamID := "workflow-123"
	eventType := "research.workflow.created"
	occurredAt := time.Now()
	payloadJSON := []byte(`{"workflow_id": "workflow-123", "name": "quantum survey"}`)

	storedEvent, err := BuildStoredEvent(streamID, eventType, 2, payloadJSON, occurredAt, "corr-789", "cause-456")
	assert.NoError(t, err)
	assert.Equal(t, streamID, storedEvent.StreamID)
	assert.Equal(t, eventType, storedEvent.EventType)
	assert.Equal(t, uint(2), storedEvent.SchemaVersion)
	assert.Equal(t, payloadJSON, storedEvent.PayloadJSON)
	assert.Equal(t, occurredAt, storedEvent.OccurredAt)
	assert.Equal(t, "corr-789", storedEvent.CorrelationID)
	assert.Equal(t, "cause-456", storedEvent.CausationID)
	assert.Zero(t, storedEvent.StreamVersion, "version is assigned by the store on append")
	assert.Zero(t, storedEvent.GlobalPosition, "global position is assigned by the store on append")
}

func Test_BuildStoredEventWithoutCausation_UsesCorrelationIDAsCausation(t *testing.T) {
	payloadJSON := []byte(`{"workflow_id": "workflow-123"}`)

	storedEvent, err := BuildStoredEventWithoutCausation(
		"workflow-123", "research.workflow.created", 2, payloadJSON, time.Now(), "corr-789")
	assert.NoError(t, err)
	assert.Equal(t, "corr-789", storedEvent.CorrelationID)
	assert.Equal(t, "corr-789", storedEvent.CausationID)
}

func Test_ConcurrencyConflictError_MatchesSentinelAndCarriesActualVersion(t *testing.T) {
	err := BuildConcurrencyConflictError("workflow-123", 2, 5)

	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	var conflictErr *ConcurrencyConflictError
	assert.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "workflow-123", conflictErr.StreamID)
	assert.Equal(t, uint(2), conflictErr.ExpectedVersion)
	assert.Equal(t, uint(5), conflictErr.ActualVersion)
	assert.Contains(t, err.Error(), "expected version 2")
	assert.Contains(t, err.Error(), "version 5")
}
