package eventstore

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// StreamIDString identifies the logical entity a stream of events belongs to.
type StreamIDString = string

// StreamVersionUint is a 1-based, contiguous, per-stream event version.
type StreamVersionUint = uint

// GlobalPositionUint64 is the store-wide commit position assigned on append.
type GlobalPositionUint64 = uint64

// StoredEvents is an alias type for a slice of StoredEvent.
type StoredEvents = []StoredEvent

// StoredEvent is the storage representation of a single domain event.
//
// It is built on scalars to be completely agnostic of the implementation of
// Domain Events in the client code. An event is immutable once persisted:
// StreamVersion places it inside its stream, GlobalPosition places it in the
// store-wide commit order.
//
// While its properties are exported, it should only be constructed with the
// supplied factory methods:
//   - BuildStoredEvent
//   - BuildStoredEventWithoutCausation
type StoredEvent struct {
	StreamID      StreamIDString
	StreamVersion StreamVersionUint
	EventType     string
	SchemaVersion uint
	PayloadJSON   []byte
	OccurredAt    time.Time
	CorrelationID string
	CausationID   string

	// GlobalPosition is assigned by the store at commit time.
	// It is zero on events that have not been persisted yet.
	GlobalPosition GlobalPositionUint64
}

// BuildStoredEvent is a factory method for StoredEvent.
//
// StreamVersion and GlobalPosition are intentionally absent from the input:
// both are assigned by the store during Append. Returns an error if any
// identifying scalar is empty, the schema version is zero, or payloadJSON is
// not valid JSON.
func BuildStoredEvent(
	streamID StreamIDString,
	eventType string,
	schemaVersion uint,
	payloadJSON []byte,
	occurredAt time.Time,
	correlationID string,
	causationID string,
) (StoredEvent, error) {

	if streamID == "" {
		return StoredEvent{}, ErrEmptyStreamIDSupplied
	}

	if eventType == "" {
		return StoredEvent{}, ErrEmptyEventTypeSupplied
	}

	if schemaVersion == 0 {
		return StoredEvent{}, ErrZeroSchemaVersionSupplied
	}

	if !jsoniter.ConfigFastest.Valid(payloadJSON) {
		return StoredEvent{}, ErrInvalidPayloadJSON
	}

	return StoredEvent{
		StreamID:      streamID,
		EventType:     eventType,
		SchemaVersion: schemaVersion,
		PayloadJSON:   payloadJSON,
		OccurredAt:    occurredAt,
		CorrelationID: correlationID,
		CausationID:   causationID,
	}, nil
}

// BuildStoredEventWithoutCausation is a factory method for StoredEvent for
// events that start a new workflow: the event correlates only with itself.
func BuildStoredEventWithoutCausation(
	streamID StreamIDString,
	eventType string,
	schemaVersion uint,
	payloadJSON []byte,
	occurredAt time.Time,
	correlationID string,
) (StoredEvent, error) {

	return BuildStoredEvent(streamID, eventType, schemaVersion, payloadJSON, occurredAt, correlationID, correlationID)
}
