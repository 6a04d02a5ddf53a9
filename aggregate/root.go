package aggregate

import (
	"encoding/json"
	"errors"

	"github.com/versioned-streams/eventstore-go/codec"
	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Root is the capability set of an event-sourced aggregate.
//
// Apply mutates the aggregate's state from one event and must stay free of
// business validation: once an event is in the log it is a fact. MarshalState
// and UnmarshalState translate the state for snapshotting. Identity,
// versioning and uncommitted-event bookkeeping come from an embedded *Base;
// the unexported method keeps the capability set closed over it.
type Root interface {
	Apply(event codec.DomainEvent) error
	MarshalState() (json.RawMessage, error)
	UnmarshalState(state json.RawMessage) error

	rootBase() *Base
}

// Base carries the identity, the persisted stream version and the
// uncommitted events of one aggregate. Aggregate implementations embed a
// *Base created with NewBase.
//
// Version reflects persisted events only; events recorded since the last
// Load or Save are uncommitted and not yet versioned.
type Base struct {
	streamID    eventstore.StreamIDString
	version     eventstore.StreamVersionUint
	uncommitted []codec.DomainEvent
}

// NewBase creates the Base for an aggregate bound to the given stream.
func NewBase(streamID eventstore.StreamIDString) *Base {
	return &Base{streamID: streamID}
}

func (b *Base) rootBase() *Base { return b }

// StreamID returns the stream this aggregate is persisted in.
func (b *Base) StreamID() eventstore.StreamIDString {
	return b.streamID
}

// Version returns the stream version of the last persisted event this
// aggregate has seen. It is zero for a fresh aggregate.
func (b *Base) Version() eventstore.StreamVersionUint {
	return b.version
}

// UncommittedEvents returns the events recorded since the last Load or Save,
// in recording order.
func (b *Base) UncommittedEvents() []codec.DomainEvent {
	events := make([]codec.DomainEvent, len(b.uncommitted))
	copy(events, b.uncommitted)

	return events
}

// HasUncommittedEvents reports whether there is anything to save.
func (b *Base) HasUncommittedEvents() bool {
	return len(b.uncommitted) > 0
}

func (b *Base) setVersion(version eventstore.StreamVersionUint) {
	b.version = version
}

func (b *Base) appendUncommitted(event codec.DomainEvent) {
	b.uncommitted = append(b.uncommitted, event)
}

func (b *Base) clearUncommitted() {
	b.uncommitted = nil
}

// RecordThat applies the events to the aggregate's state and tracks them as
// uncommitted, to be persisted by the next Repository.Save. Command methods
// call it after their business validation passed.
func RecordThat(root Root, events ...codec.DomainEvent) error {
	for _, event := range events {
		if err := root.Apply(event); err != nil {
			return errors.Join(ErrApplyEventFailed, err)
		}

		root.rootBase().appendUncommitted(event)
	}

	return nil
}
