package replay

import (
	"context"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Handler consumes replayed events, typically to build a read model.
//
// Handle receives the events of one stream in version order; events of
// different streams arrive concurrently. Delivery is at-least-once: a resumed
// run redelivers events after the last checkpoint, so Handle must be
// idempotent. A returned error triggers the run's retry policy.
type Handler interface {
	Name() string
	EventTypes() []string
	Handle(ctx context.Context, event eventstore.StoredEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Types       []string
	Fn          func(ctx context.Context, event eventstore.StoredEvent) error
}

// Name implements Handler.
func (h HandlerFunc) Name() string { return h.HandlerName }

// EventTypes implements Handler.
func (h HandlerFunc) EventTypes() []string { return h.Types }

// Handle implements Handler.
func (h HandlerFunc) Handle(ctx context.Context, event eventstore.StoredEvent) error {
	return h.Fn(ctx, event)
}
