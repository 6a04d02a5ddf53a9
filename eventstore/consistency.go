package eventstore

import "context"

// ConsistencyLevel selects which database an engine may serve a read from.
type ConsistencyLevel int

const (
	// StrongConsistency routes reads to the primary so a handler sees its
	// own writes. This is the default: optimistic concurrency depends on
	// reading the current stream version.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from a replica. Only safe for pure
	// queries that tolerate slightly stale streams.
	EventualConsistency
)

// contextKey keeps the consistency key from colliding with other packages.
type contextKey string

// ConsistencyLevelKey is the context key under which the level travels.
const ConsistencyLevelKey contextKey = "eventstore.consistency_level"

// WithStrongConsistency marks the context so reads go to the primary.
// Command handlers doing read-decide-append should use this.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency marks the context so reads may go to a replica,
// trading freshness for primary load.
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel reads the level from the context, defaulting to
// StrongConsistency when none was set.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String renders the level for log output.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
