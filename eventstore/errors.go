package eventstore

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTableNameSupplied is returned when an engine is configured with an empty table name.
	ErrEmptyTableNameSupplied = errors.New("empty table name supplied")

	// ErrEmptyStreamIDSupplied is returned when an operation is invoked with an empty stream ID.
	ErrEmptyStreamIDSupplied = errors.New("empty stream id supplied")

	// ErrEmptyEventTypeSupplied is returned when a StoredEvent is built with an empty event type.
	ErrEmptyEventTypeSupplied = errors.New("empty event type supplied")

	// ErrZeroSchemaVersionSupplied is returned when a StoredEvent is built with schema version 0.
	// Schema versions are 1-based so that the zero value always means "unset".
	ErrZeroSchemaVersionSupplied = errors.New("schema version must be 1 or higher")

	// ErrInvalidPayloadJSON is returned when an event payload is not valid JSON.
	ErrInvalidPayloadJSON = errors.New("payload json is not valid")

	// ErrInvalidSnapshotJSON is returned when snapshot state is not valid JSON.
	ErrInvalidSnapshotJSON = errors.New("snapshot state json is not valid")

	// ErrZeroSnapshotVersion is returned when a snapshot is built for version 0.
	// A snapshot always reflects at least one applied event.
	ErrZeroSnapshotVersion = errors.New("snapshot version must be 1 or higher")

	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")

	// ErrDeletingSnapshotsFailed is returned when the snapshot delete operation fails.
	ErrDeletingSnapshotsFailed = errors.New("deleting snapshots failed")

	// ErrSavingCheckpointFailed is returned when persisting a replay checkpoint fails.
	ErrSavingCheckpointFailed = errors.New("saving replay checkpoint failed")

	// ErrLoadingCheckpointFailed is returned when loading replay checkpoints fails.
	ErrLoadingCheckpointFailed = errors.New("loading replay checkpoints failed")

	// ErrNoEventsSupplied is returned when Append is invoked with an empty event batch.
	ErrNoEventsSupplied = errors.New("no events supplied")

	// ErrStreamIDMismatch is returned when an appended event was built for a different
	// stream than the one Append was invoked on.
	ErrStreamIDMismatch = errors.New("event stream id does not match the stream being appended to")

	// ErrEmptyRunIDSupplied is returned when a replay checkpoint is built without a run ID.
	ErrEmptyRunIDSupplied = errors.New("empty replay run id supplied")

	// ErrNoCheckpointsSupplied is returned when a checkpoint save is invoked with an empty batch.
	ErrNoCheckpointsSupplied = errors.New("no replay checkpoints supplied")

	// ErrNilDatabaseConnection is returned when an engine is constructed with a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrBuildingQueryFailed is returned when an engine fails to build a SQL statement.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrReadingEventsFailed is returned when the database read query fails.
	ErrReadingEventsFailed = errors.New("reading events failed")

	// ErrScanningDBRowFailed is returned when scanning a database row fails.
	ErrScanningDBRowFailed = errors.New("scanning database row failed")

	// ErrBuildingStoredEventFailed is returned when a database row does not yield a valid StoredEvent.
	ErrBuildingStoredEventFailed = errors.New("building stored event from database row failed")

	// ErrAppendingEventsFailed is returned when the database append execution fails.
	ErrAppendingEventsFailed = errors.New("appending events failed")

	// ErrGettingRowsAffectedFailed is returned when the affected row count cannot be determined.
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected count failed")

	// ErrDeletingCheckpointsFailed is returned when deleting replay checkpoints fails.
	ErrDeletingCheckpointsFailed = errors.New("deleting replay checkpoints failed")

	// ErrConcurrencyConflict is returned when an append's expected version does not match
	// the stream's current version. Use errors.Is against this sentinel; the returned
	// error is a ConcurrencyConflictError carrying the actual version for reload-and-retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict: expected version does not match current stream version")

	// ErrStreamNotFound is returned when reading or loading a stream that has zero events.
	// A stream's existence is implicit in having at least one event.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrSnapshotCorrupt is returned when persisted snapshot state cannot be decoded.
	// Callers must fall back to a full replay from version 0 rather than fail the load.
	ErrSnapshotCorrupt = errors.New("snapshot state is corrupt")
)

// ConcurrencyConflictError reports a failed optimistic-concurrency check on Append.
// ActualVersion is the stream's current head version at the time of the conflict,
// so the caller can reload from that point and retry.
type ConcurrencyConflictError struct {
	StreamID        StreamIDString
	ExpectedVersion StreamVersionUint
	ActualVersion   StreamVersionUint
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf(
		"concurrency conflict on stream %q: expected version %d but stream is at version %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion,
	)
}

// Unwrap makes errors.Is(err, ErrConcurrencyConflict) match.
func (e *ConcurrencyConflictError) Unwrap() error {
	return ErrConcurrencyConflict
}

// BuildConcurrencyConflictError creates a ConcurrencyConflictError for the given stream.
func BuildConcurrencyConflictError(
	streamID StreamIDString,
	expectedVersion StreamVersionUint,
	actualVersion StreamVersionUint,
) error {

	return &ConcurrencyConflictError{
		StreamID:        streamID,
		ExpectedVersion: expectedVersion,
		ActualVersion:   actualVersion,
	}
}
