package eventstore

import (
	"encoding/json"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Snapshot is a compacted capture of aggregate state at a given stream version.
// A snapshot at Version plus all events with StreamVersion > Version reconstructs
// the same state as replaying the stream from version 0. Snapshots are an
// optimization, never a source of truth; the event log stays authoritative.
type Snapshot struct {
	StreamID  StreamIDString    // Stream this snapshot belongs to
	Version   StreamVersionUint // Version of the last event the state reflects
	State     json.RawMessage   // Serialized aggregate state as JSON
	CreatedAt time.Time         // When this snapshot was created
}

// Validate ensures the snapshot has valid data for storage operations.
func (s Snapshot) Validate() error {
	if s.StreamID == "" {
		return ErrEmptyStreamIDSupplied
	}

	if s.Version == 0 {
		return ErrZeroSnapshotVersion
	}

	if !jsoniter.ConfigFastest.Valid(s.State) {
		return ErrInvalidSnapshotJSON
	}

	return nil
}

// BuildSnapshot creates a new Snapshot with validation.
func BuildSnapshot(
	streamID StreamIDString,
	version StreamVersionUint,
	state json.RawMessage,
) (Snapshot, error) {

	snapshot := Snapshot{
		StreamID:  streamID,
		Version:   version,
		State:     state,
		CreatedAt: time.Now(),
	}

	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}

// SnapshotStats summarizes the persisted snapshots of one stream.
type SnapshotStats struct {
	Count         uint64            // Number of snapshots currently persisted for the stream
	LatestVersion StreamVersionUint // Version of the newest snapshot, 0 when none exist
}
