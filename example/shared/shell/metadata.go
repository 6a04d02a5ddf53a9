package shell

import (
	"github.com/google/uuid"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/eventstore"
)

// NewCommandMetadata starts a fresh correlation chain for one command: the
// command correlates and is caused only by itself.
func NewCommandMetadata() aggregate.Metadata {
	commandID := uuid.NewString()

	return aggregate.Metadata{
		CorrelationID: commandID,
		CausationID:   commandID,
	}
}

// MetadataCausedBy continues the correlation chain of a stored event, for
// commands issued in reaction to it: the correlation carries over while the
// reacting command gets its own causation id.
func MetadataCausedBy(cause eventstore.StoredEvent) aggregate.Metadata {
	return aggregate.Metadata{
		CorrelationID: cause.CorrelationID,
		CausationID:   uuid.NewString(),
	}
}
