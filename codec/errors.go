package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for registration and translation failures.
// They can be checked with errors.Is.
var (
	// ErrEmptyEventTypeSupplied is returned when an empty event type is supplied.
	ErrEmptyEventTypeSupplied = errors.New("empty event type supplied")

	// ErrZeroSchemaVersionSupplied is returned when a schema version of zero is supplied,
	// schema versions start at 1.
	ErrZeroSchemaVersionSupplied = errors.New("zero schema version supplied, schema versions start at 1")

	// ErrNilDecoderSupplied is returned when a nil decode function is supplied.
	ErrNilDecoderSupplied = errors.New("nil decoder supplied")

	// ErrNilUpcasterSupplied is returned when a nil upcast function is supplied.
	ErrNilUpcasterSupplied = errors.New("nil upcaster supplied")

	// ErrDecoderAlreadyRegistered is returned when a decoder for the same
	// event type and schema version is registered twice.
	ErrDecoderAlreadyRegistered = errors.New("decoder already registered for this event type and schema version")

	// ErrUpcasterAlreadyRegistered is returned when an upcaster for the same
	// event type and source schema version is registered twice.
	ErrUpcasterAlreadyRegistered = errors.New("upcaster already registered for this event type and schema version")

	// ErrSchemaUnknown is returned when no decoder (or upcast path to one) exists
	// for an event type and schema version.
	ErrSchemaUnknown = errors.New("unknown event schema")

	// ErrSerializationFailed is returned when marshaling a domain event fails.
	ErrSerializationFailed = errors.New("serialization of domain event failed")

	// ErrDeserializationFailed is returned when a registered decoder rejects a payload.
	ErrDeserializationFailed = errors.New("deserialization of event payload failed")

	// ErrUpcastFailed is returned when a schema migration step rejects a payload.
	ErrUpcastFailed = errors.New("upcasting event payload failed")
)

// SchemaUnknownError reports the exact (event type, schema version) pair the
// registry could not translate. It unwraps to ErrSchemaUnknown so callers can
// match it with errors.Is, or use errors.As to inspect the pair.
type SchemaUnknownError struct {
	EventType     string
	SchemaVersion uint
}

// Error implements the error interface.
func (e *SchemaUnknownError) Error() string {
	return fmt.Sprintf("%s: event type %q schema version %d", ErrSchemaUnknown.Error(), e.EventType, e.SchemaVersion)
}

// Unwrap makes the error compatible with errors.Is(err, ErrSchemaUnknown).
func (e *SchemaUnknownError) Unwrap() error {
	return ErrSchemaUnknown
}

// BuildSchemaUnknownError is a factory method for SchemaUnknownError.
func BuildSchemaUnknownError(eventType string, schemaVersion uint) *SchemaUnknownError {
	return &SchemaUnknownError{
		EventType:     eventType,
		SchemaVersion: schemaVersion,
	}
}
