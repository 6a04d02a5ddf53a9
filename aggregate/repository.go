package aggregate

import (
	"context"
	"errors"

	"github.com/versioned-streams/eventstore-go/codec"
	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/snapshots"
)

// EventStore is the narrow view of an eventstore engine the repository
// needs. All engines satisfy it.
type EventStore interface {
	Append(
		ctx context.Context,
		streamID eventstore.StreamIDString,
		expectedVersion eventstore.StreamVersionUint,
		events ...eventstore.StoredEvent,
	) (eventstore.StreamVersionUint, error)

	Read(
		ctx context.Context,
		streamID eventstore.StreamIDString,
		fromVersion eventstore.StreamVersionUint,
		toVersion eventstore.StreamVersionUint,
	) (eventstore.StoredEvents, error)
}

// SnapshotStore is the narrow view of snapshot persistence the repository
// needs, satisfied by the engines and by snapshots.CachingStore.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error

	LoadLatestSnapshot(
		ctx context.Context,
		streamID eventstore.StreamIDString,
		maxVersion eventstore.StreamVersionUint,
	) (*eventstore.Snapshot, error)
}

// Metadata correlates the persisted events with the command that caused them.
type Metadata struct {
	CorrelationID string
	CausationID   string
}

type repositoryConfig struct {
	snapshotStore SnapshotStore
	policy        snapshots.Policy
	logger        eventstore.Logger
}

// Option configures a Repository.
type Option func(*repositoryConfig) error

// WithSnapshotting makes the repository restore aggregates from the newest
// snapshot and capture a new one whenever a save crosses a policy boundary.
// Snapshot failures never fail the load or save, they degrade to full replay.
func WithSnapshotting(store SnapshotStore, policy snapshots.Policy) Option {
	return func(cfg *repositoryConfig) error {
		if store == nil {
			return ErrNilSnapshotStoreSupplied
		}

		if policy.Frequency() == 0 {
			return snapshots.ErrZeroFrequencySupplied
		}

		cfg.snapshotStore = store
		cfg.policy = policy

		return nil
	}
}

// WithLogger supplies a logger for degraded-path warnings.
func WithLogger(logger eventstore.Logger) Option {
	return func(cfg *repositoryConfig) error {
		if logger == nil {
			return ErrNilLoggerSupplied
		}

		cfg.logger = logger

		return nil
	}
}

// Repository loads and saves one aggregate type.
//
// Load rebuilds the aggregate from the newest snapshot plus the event tail,
// Save appends the uncommitted events with the loaded version as the
// optimistic concurrency guard. A ConcurrencyConflictError from Save means
// the caller should reload and decide again.
type Repository[T Root] struct {
	store         EventStore
	registry      *codec.Registry
	newRoot       func(streamID eventstore.StreamIDString) T
	snapshotStore SnapshotStore
	policy        snapshots.Policy
	logger        eventstore.Logger
}

// NewRepository creates a Repository for the aggregate type the factory
// produces. The factory must return a fresh, zero-state aggregate bound to
// the given stream.
func NewRepository[T Root](
	store EventStore,
	registry *codec.Registry,
	newRoot func(streamID eventstore.StreamIDString) T,
	options ...Option,
) (*Repository[T], error) {

	if store == nil {
		return nil, ErrNilEventStoreSupplied
	}

	if registry == nil {
		return nil, ErrNilRegistrySupplied
	}

	if newRoot == nil {
		return nil, ErrNilRootFactorySupplied
	}

	cfg := repositoryConfig{}
	for _, option := range options {
		if err := option(&cfg); err != nil {
			return nil, err
		}
	}

	return &Repository[T]{
		store:         store,
		registry:      registry,
		newRoot:       newRoot,
		snapshotStore: cfg.snapshotStore,
		policy:        cfg.policy,
		logger:        cfg.logger,
	}, nil
}

// Load rebuilds the aggregate from its stream. The result's version equals
// the latest persisted event version. A stream with no events returns
// eventstore.ErrStreamNotFound.
//
// When snapshotting is configured, the newest snapshot seeds the state and
// only the tail of the stream is replayed. A missing, failing or corrupt
// snapshot degrades to a full replay; the log stays authoritative.
func (r *Repository[T]) Load(ctx context.Context, streamID eventstore.StreamIDString) (T, error) {
	var zero T

	if streamID == "" {
		return zero, eventstore.ErrEmptyStreamIDSupplied
	}

	root := r.newRoot(streamID)
	fromVersion := eventstore.StreamVersionUint(0)

	if r.snapshotStore != nil {
		root, fromVersion = r.restoreFromSnapshot(ctx, streamID, root)
	}

	events, err := r.store.Read(ctx, streamID, fromVersion, 0)
	if err != nil {
		return zero, err
	}

	base := root.rootBase()
	for _, stored := range events {
		domainEvent, decodeErr := r.registry.Deserialize(stored.EventType, stored.SchemaVersion, stored.PayloadJSON)
		if decodeErr != nil {
			return zero, decodeErr
		}

		if applyErr := root.Apply(domainEvent); applyErr != nil {
			return zero, errors.Join(ErrApplyEventFailed, applyErr)
		}

		base.setVersion(stored.StreamVersion)
	}

	return root, nil
}

// Save appends the aggregate's uncommitted events to its stream, expecting
// the version the aggregate was loaded at, and returns the new stream
// version. Saving an aggregate without uncommitted events is a no-op.
//
// On success the aggregate's version advances and its uncommitted events are
// cleared; a due snapshot is captured best-effort afterwards.
func (r *Repository[T]) Save(ctx context.Context, root T, metadata Metadata) (eventstore.StreamVersionUint, error) {
	base := root.rootBase()

	uncommitted := base.uncommitted
	if len(uncommitted) == 0 {
		return base.version, nil
	}

	expectedVersion := base.version

	storedEvents := make(eventstore.StoredEvents, 0, len(uncommitted))
	for _, domainEvent := range uncommitted {
		payloadJSON, err := r.registry.Serialize(domainEvent)
		if err != nil {
			return 0, err
		}

		storedEvent, err := eventstore.BuildStoredEvent(
			base.streamID,
			domainEvent.EventType(),
			domainEvent.SchemaVersion(),
			payloadJSON,
			domainEvent.HasOccurredAt(),
			metadata.CorrelationID,
			metadata.CausationID,
		)
		if err != nil {
			return 0, err
		}

		storedEvents = append(storedEvents, storedEvent)
	}

	newVersion, err := r.store.Append(ctx, base.streamID, expectedVersion, storedEvents...)
	if err != nil {
		return 0, err
	}

	base.setVersion(newVersion)
	base.clearUncommitted()

	r.maybeSnapshot(ctx, root, expectedVersion, newVersion)

	return newVersion, nil
}

// restoreFromSnapshot seeds the aggregate from the newest snapshot and
// returns the version to read the event tail from. Every failure degrades to
// a full replay with a fresh aggregate.
func (r *Repository[T]) restoreFromSnapshot(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	root T,
) (T, eventstore.StreamVersionUint) {

	snapshot, err := r.snapshotStore.LoadLatestSnapshot(ctx, streamID, 0)
	if err != nil {
		r.logDegraded("loading snapshot failed, replaying from scratch", streamID, err)

		return root, 0
	}

	if snapshot == nil {
		return root, 0
	}

	if err := root.UnmarshalState(snapshot.State); err != nil {
		r.logDegraded("snapshot state corrupt, replaying from scratch",
			streamID, errors.Join(eventstore.ErrSnapshotCorrupt, err))

		// The failed restore may have mutated the aggregate, start over.
		return r.newRoot(streamID), 0
	}

	root.rootBase().setVersion(snapshot.Version)

	return root, snapshot.Version + 1
}

// maybeSnapshot captures the aggregate state when the save crossed a policy
// boundary. Failures are logged and swallowed, snapshots are an optimization.
func (r *Repository[T]) maybeSnapshot(
	ctx context.Context,
	root T,
	previousVersion eventstore.StreamVersionUint,
	newVersion eventstore.StreamVersionUint,
) {

	if r.snapshotStore == nil || !r.policy.Due(previousVersion, newVersion) {
		return
	}

	base := root.rootBase()

	state, err := root.MarshalState()
	if err != nil {
		r.logDegraded("marshaling aggregate state for snapshot failed", base.streamID, err)

		return
	}

	snapshot, err := eventstore.BuildSnapshot(base.streamID, newVersion, state)
	if err != nil {
		r.logDegraded("building snapshot failed", base.streamID, err)

		return
	}

	if err := r.snapshotStore.SaveSnapshot(ctx, snapshot); err != nil {
		r.logDegraded("saving snapshot failed", base.streamID, err)
	}
}

func (r *Repository[T]) logDegraded(msg string, streamID eventstore.StreamIDString, err error) {
	if r.logger == nil {
		return
	}

	r.logger.Warn(msg, "stream_id", streamID, "error", err.Error())
}
