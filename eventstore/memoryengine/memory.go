package memoryengine

import (
	"context"
	"sort"
	"sync"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

const (
	logMsgEventsAppended      = "events appended"
	logMsgConcurrencyConflict = "concurrency conflict detected"
	logAttrStreamID           = "stream_id"
	logAttrEventCount         = "event_count"
	logAttrNewVersion         = "new_version"
	logAttrExpectedVersion    = "expected_version"
	logAttrActualVersion      = "actual_version"

	maxReadPageSize = 1000
)

// Logger interface for operational logging, matching the SQL engines.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore)

// WithLogger sets the logger for the EventStore.
func WithLogger(logger Logger) Option {
	return func(es *EventStore) {
		es.logger = logger
	}
}

// EventStore is the in-memory engine for per-stream versioned event storage.
type EventStore struct {
	mu          sync.RWMutex
	streams     map[eventstore.StreamIDString]eventstore.StoredEvents
	globalLog   eventstore.StoredEvents
	snapshots   map[eventstore.StreamIDString][]eventstore.Snapshot
	checkpoints map[string]map[eventstore.StreamIDString]eventstore.ReplayCheckpoint
	logger      Logger
}

// NewEventStore creates a new in-memory EventStore with optional configuration.
func NewEventStore(options ...Option) *EventStore {
	es := &EventStore{
		streams:     make(map[eventstore.StreamIDString]eventstore.StoredEvents),
		snapshots:   make(map[eventstore.StreamIDString][]eventstore.Snapshot),
		checkpoints: make(map[string]map[eventstore.StreamIDString]eventstore.ReplayCheckpoint),
	}

	for _, option := range options {
		option(es)
	}

	return es
}

// Append atomically persists the given events onto the stream with contiguous versions
// starting at expectedVersion+1 and returns the new stream version. When the stream's
// current version differs from expectedVersion, a ConcurrencyConflictError carrying the
// actual version is returned and nothing is persisted.
func (es *EventStore) Append(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
	events ...eventstore.StoredEvent,
) (eventstore.StreamVersionUint, error) {

	if streamID == "" {
		return 0, eventstore.ErrEmptyStreamIDSupplied
	}

	if len(events) == 0 {
		return 0, eventstore.ErrNoEventsSupplied
	}

	for _, event := range events {
		if event.StreamID != streamID {
			return 0, eventstore.ErrStreamIDMismatch
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	// Versions are contiguous from 1, so the stream length is its current version.
	actualVersion := eventstore.StreamVersionUint(len(es.streams[streamID]))
	if actualVersion != expectedVersion {
		if es.logger != nil {
			es.logger.Info(logMsgConcurrencyConflict,
				logAttrStreamID, streamID,
				logAttrExpectedVersion, expectedVersion,
				logAttrActualVersion, actualVersion)
		}

		return 0, eventstore.BuildConcurrencyConflictError(streamID, expectedVersion, actualVersion)
	}

	for i, event := range events {
		stored := event
		stored.StreamVersion = expectedVersion + eventstore.StreamVersionUint(i) + 1
		stored.GlobalPosition = eventstore.GlobalPositionUint64(len(es.globalLog) + 1)
		stored.PayloadJSON = append([]byte(nil), event.PayloadJSON...)

		es.streams[streamID] = append(es.streams[streamID], stored)
		es.globalLog = append(es.globalLog, stored)
	}

	newVersion := expectedVersion + eventstore.StreamVersionUint(len(events))

	if es.logger != nil {
		es.logger.Info(logMsgEventsAppended,
			logAttrStreamID, streamID,
			logAttrEventCount, len(events),
			logAttrNewVersion, newVersion)
	}

	return newVersion, nil
}

// Read retrieves the committed events of one stream in ascending version order.
// fromVersion and toVersion bound the range inclusively; a zero toVersion means
// "to the head". Reading a stream with zero events returns ErrStreamNotFound.
func (es *EventStore) Read(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	fromVersion eventstore.StreamVersionUint,
	toVersion eventstore.StreamVersionUint,
) (eventstore.StoredEvents, error) {

	if streamID == "" {
		return nil, eventstore.ErrEmptyStreamIDSupplied
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	stream, exists := es.streams[streamID]
	if !exists || len(stream) == 0 {
		return nil, eventstore.ErrStreamNotFound
	}

	eventStream := make(eventstore.StoredEvents, 0, len(stream))
	for _, event := range stream {
		if fromVersion > 0 && event.StreamVersion < fromVersion {
			continue
		}
		if toVersion > 0 && event.StreamVersion > toVersion {
			break
		}

		eventStream = append(eventStream, event)
	}

	return eventStream, nil
}

// ReadAll retrieves one page of committed events across all streams in global commit
// order, starting after fromGlobalPosition. The page holds at most limit events,
// capped at 1000; an empty page means the feed is exhausted at read time.
func (es *EventStore) ReadAll(
	ctx context.Context,
	fromGlobalPosition eventstore.GlobalPositionUint64,
	limit int,
) (eventstore.StoredEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageSize := limit
	if pageSize <= 0 || pageSize > maxReadPageSize {
		pageSize = maxReadPageSize
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	// Global positions are contiguous from 1, so the start offset is direct.
	start := int(fromGlobalPosition)
	if start >= len(es.globalLog) {
		return eventstore.StoredEvents{}, nil
	}

	end := start + pageSize
	if end > len(es.globalLog) {
		end = len(es.globalLog)
	}

	page := make(eventstore.StoredEvents, end-start)
	copy(page, es.globalLog[start:end])

	return page, nil
}

// SaveSnapshot persists a snapshot, with one snapshot per (stream, version).
// Saving the same version again overwrites the previous capture.
func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	stored := snapshot
	stored.State = append([]byte(nil), snapshot.State...)

	es.mu.Lock()
	defer es.mu.Unlock()

	streamSnapshots := es.snapshots[snapshot.StreamID]

	for i, existing := range streamSnapshots {
		if existing.Version == snapshot.Version {
			streamSnapshots[i] = stored
			return nil
		}
	}

	streamSnapshots = append(streamSnapshots, stored)
	sort.Slice(streamSnapshots, func(i, j int) bool {
		return streamSnapshots[i].Version < streamSnapshots[j].Version
	})

	es.snapshots[snapshot.StreamID] = streamSnapshots

	return nil
}

// LoadLatestSnapshot returns the newest snapshot of the stream with version <= maxVersion,
// or nil when none exists. A zero maxVersion means "no upper bound".
func (es *EventStore) LoadLatestSnapshot(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	maxVersion eventstore.StreamVersionUint,
) (*eventstore.Snapshot, error) {

	if streamID == "" {
		return nil, eventstore.ErrEmptyStreamIDSupplied
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	streamSnapshots := es.snapshots[streamID]

	for i := len(streamSnapshots) - 1; i >= 0; i-- {
		if maxVersion > 0 && streamSnapshots[i].Version > maxVersion {
			continue
		}

		snapshot := streamSnapshots[i]
		snapshot.State = append([]byte(nil), streamSnapshots[i].State...)

		return &snapshot, nil
	}

	return nil, nil
}

// DeleteSnapshotsBefore deletes every snapshot of the stream with a version strictly
// below the given version. The operation is idempotent.
func (es *EventStore) DeleteSnapshotsBefore(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	version eventstore.StreamVersionUint,
) error {

	if streamID == "" {
		return eventstore.ErrEmptyStreamIDSupplied
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	kept := es.snapshots[streamID][:0]
	for _, snapshot := range es.snapshots[streamID] {
		if snapshot.Version >= version {
			kept = append(kept, snapshot)
		}
	}

	if len(kept) == 0 {
		delete(es.snapshots, streamID)
	} else {
		es.snapshots[streamID] = kept
	}

	return nil
}

// GetSnapshotStats returns the snapshot count and the newest snapshot version for a stream.
func (es *EventStore) GetSnapshotStats(
	ctx context.Context,
	streamID eventstore.StreamIDString,
) (eventstore.SnapshotStats, error) {

	if streamID == "" {
		return eventstore.SnapshotStats{}, eventstore.ErrEmptyStreamIDSupplied
	}

	if err := ctx.Err(); err != nil {
		return eventstore.SnapshotStats{}, err
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	streamSnapshots := es.snapshots[streamID]

	stats := eventstore.SnapshotStats{Count: uint64(len(streamSnapshots))}
	if len(streamSnapshots) > 0 {
		stats.LatestVersion = streamSnapshots[len(streamSnapshots)-1].Version
	}

	return stats, nil
}

// SaveCheckpoints upserts the given replay checkpoints keyed by (replay_run_id, stream_id).
func (es *EventStore) SaveCheckpoints(ctx context.Context, checkpoints ...eventstore.ReplayCheckpoint) error {
	if len(checkpoints) == 0 {
		return eventstore.ErrNoCheckpointsSupplied
	}

	for _, checkpoint := range checkpoints {
		if err := checkpoint.Validate(); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	for _, checkpoint := range checkpoints {
		runCheckpoints, exists := es.checkpoints[checkpoint.RunID]
		if !exists {
			runCheckpoints = make(map[eventstore.StreamIDString]eventstore.ReplayCheckpoint)
			es.checkpoints[checkpoint.RunID] = runCheckpoints
		}

		runCheckpoints[checkpoint.StreamID] = checkpoint
	}

	return nil
}

// LoadCheckpoints returns all persisted checkpoints of the given replay run,
// ordered by stream ID. An unknown run yields an empty slice.
func (es *EventStore) LoadCheckpoints(ctx context.Context, runID string) (eventstore.ReplayCheckpoints, error) {
	if runID == "" {
		return nil, eventstore.ErrEmptyRunIDSupplied
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	runCheckpoints := es.checkpoints[runID]

	checkpoints := make(eventstore.ReplayCheckpoints, 0, len(runCheckpoints))
	for _, checkpoint := range runCheckpoints {
		checkpoints = append(checkpoints, checkpoint)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].StreamID < checkpoints[j].StreamID
	})

	return checkpoints, nil
}

// DeleteCheckpoints removes every checkpoint of the given replay run.
// The operation is idempotent.
func (es *EventStore) DeleteCheckpoints(ctx context.Context, runID string) error {
	if runID == "" {
		return eventstore.ErrEmptyRunIDSupplied
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	delete(es.checkpoints, runID)

	return nil
}
