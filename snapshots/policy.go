package snapshots

import (
	"github.com/versioned-streams/eventstore-go/eventstore"
)

// DefaultSnapshotFrequency is the default number of events between snapshots.
const DefaultSnapshotFrequency uint = 100

// Policy decides when a stream has accumulated enough new events since the
// last snapshot boundary to be worth snapshotting. The zero value is not
// usable; construct one with NewPolicy or DefaultPolicy.
type Policy struct {
	frequency uint
}

// NewPolicy creates a Policy that snapshots every `frequency` events.
func NewPolicy(frequency uint) (Policy, error) {
	if frequency == 0 {
		return Policy{}, ErrZeroFrequencySupplied
	}

	return Policy{frequency: frequency}, nil
}

// DefaultPolicy creates a Policy with DefaultSnapshotFrequency.
func DefaultPolicy() Policy {
	return Policy{frequency: DefaultSnapshotFrequency}
}

// Frequency returns the number of events between snapshots.
func (p Policy) Frequency() uint {
	return p.frequency
}

// Due reports whether a snapshot boundary was crossed between the two stream
// versions. Appends can write multiple events at once, so the check is for a
// crossed boundary, not an exact multiple.
func (p Policy) Due(previousVersion, newVersion eventstore.StreamVersionUint) bool {
	if p.frequency == 0 || newVersion <= previousVersion {
		return false
	}

	return newVersion/p.frequency > previousVersion/p.frequency
}
