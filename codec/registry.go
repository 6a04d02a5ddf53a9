package codec

import (
	"errors"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// DomainEvent is the contract a domain event must fulfill to be translated
// by a Registry. EventType and SchemaVersion identify the payload schema,
// HasOccurredAt carries the business time of the event.
type DomainEvent interface {
	EventType() string
	SchemaVersion() uint
	HasOccurredAt() time.Time
}

// DecodeFunc turns a JSON payload of one known schema version into its
// in-memory domain event representation.
type DecodeFunc func(payloadJSON []byte) (DomainEvent, error)

// UpcastFunc migrates a JSON payload from one schema version to the next one.
// It must not mutate the input slice.
type UpcastFunc func(payloadJSON []byte) ([]byte, error)

type schemaKey struct {
	eventType     string
	schemaVersion uint
}

// Registry dispatches serialization and deserialization by event type and
// schema version.
//
// Decoders are registered per (event type, schema version) pair and upcasters
// per migration step from a schema version to its successor. Deserialize walks
// the upcast chain from the stored schema version upwards until it reaches a
// registered decoder, so old payloads keep loading after the schema evolved.
//
// Registration is expected to happen once during startup; all methods are safe
// for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	decoders  map[schemaKey]DecodeFunc
	upcasters map[schemaKey]UpcastFunc
	latest    map[string]uint
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders:  make(map[schemaKey]DecodeFunc),
		upcasters: make(map[schemaKey]UpcastFunc),
		latest:    make(map[string]uint),
	}
}

// RegisterDecoder registers the decode function for one event type at one
// schema version. Registering the same pair twice is an error.
func (r *Registry) RegisterDecoder(eventType string, schemaVersion uint, decode DecodeFunc) error {
	if eventType == "" {
		return ErrEmptyEventTypeSupplied
	}

	if schemaVersion == 0 {
		return ErrZeroSchemaVersionSupplied
	}

	if decode == nil {
		return ErrNilDecoderSupplied
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := schemaKey{eventType: eventType, schemaVersion: schemaVersion}
	if _, exists := r.decoders[key]; exists {
		return ErrDecoderAlreadyRegistered
	}

	r.decoders[key] = decode

	if schemaVersion > r.latest[eventType] {
		r.latest[eventType] = schemaVersion
	}

	return nil
}

// RegisterUpcaster registers the migration step for one event type from
// fromVersion to fromVersion+1. Registering the same step twice is an error.
func (r *Registry) RegisterUpcaster(eventType string, fromVersion uint, upcast UpcastFunc) error {
	if eventType == "" {
		return ErrEmptyEventTypeSupplied
	}

	if fromVersion == 0 {
		return ErrZeroSchemaVersionSupplied
	}

	if upcast == nil {
		return ErrNilUpcasterSupplied
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := schemaKey{eventType: eventType, schemaVersion: fromVersion}
	if _, exists := r.upcasters[key]; exists {
		return ErrUpcasterAlreadyRegistered
	}

	r.upcasters[key] = upcast

	return nil
}

// LatestSchemaVersion returns the highest schema version with a registered
// decoder for the given event type.
func (r *Registry) LatestSchemaVersion(eventType string) (uint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, exists := r.latest[eventType]
	if !exists {
		return 0, BuildSchemaUnknownError(eventType, 0)
	}

	return version, nil
}

// Serialize marshals a domain event into the JSON payload to be persisted.
// The event's (type, schema version) pair must have a registered decoder,
// to guarantee that whatever is written can be read back.
func (r *Registry) Serialize(event DomainEvent) ([]byte, error) {
	r.mu.RLock()
	_, registered := r.decoders[schemaKey{eventType: event.EventType(), schemaVersion: event.SchemaVersion()}]
	r.mu.RUnlock()

	if !registered {
		return nil, BuildSchemaUnknownError(event.EventType(), event.SchemaVersion())
	}

	payloadJSON, err := jsoniter.ConfigFastest.Marshal(event)
	if err != nil {
		return nil, errors.Join(ErrSerializationFailed, err)
	}

	return payloadJSON, nil
}

// Deserialize turns a persisted payload back into its domain event.
//
// When no decoder is registered at the stored schema version, the payload is
// upcast step by step until a version with a decoder is reached. A missing
// step fails with a SchemaUnknownError carrying the originally stored pair,
// never a partially migrated one.
func (r *Registry) Deserialize(eventType string, schemaVersion uint, payloadJSON []byte) (DomainEvent, error) {
	if eventType == "" {
		return nil, ErrEmptyEventTypeSupplied
	}

	if schemaVersion == 0 {
		return nil, ErrZeroSchemaVersionSupplied
	}

	version := schemaVersion
	payload := payloadJSON

	for {
		r.mu.RLock()
		decode, decoderFound := r.decoders[schemaKey{eventType: eventType, schemaVersion: version}]
		upcast, upcasterFound := r.upcasters[schemaKey{eventType: eventType, schemaVersion: version}]
		r.mu.RUnlock()

		if decoderFound {
			event, err := decode(payload)
			if err != nil {
				return nil, errors.Join(ErrDeserializationFailed, err)
			}

			return event, nil
		}

		if !upcasterFound {
			return nil, BuildSchemaUnknownError(eventType, schemaVersion)
		}

		migrated, err := upcast(payload)
		if err != nil {
			return nil, errors.Join(ErrUpcastFailed, err)
		}

		payload = migrated
		version++
	}
}
