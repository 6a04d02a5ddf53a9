package eventstore

import (
	"time"
)

// GlobalCheckpointStreamID is the reserved stream ID of the per-run checkpoint row
// that tracks the global feed position and the run's status. Regular stream IDs
// never collide with it because it is not a valid stream ID for Append.
const GlobalCheckpointStreamID = "$all"

// ReplayCheckpoints is an alias type for a slice of ReplayCheckpoint.
type ReplayCheckpoints = []ReplayCheckpoint

// ReplayCheckpoint is a persisted progress marker of a replay run. Per-stream rows
// record the last processed version of that stream; the reserved row with
// StreamID == GlobalCheckpointStreamID records the global feed position (in
// LastProcessedVersion, interpreted as a global position) and the run's status.
//
// A resumed run loses at most one unflushed checkpoint interval of progress and
// re-delivers those events, which is why replay handlers must tolerate
// at-least-once delivery.
type ReplayCheckpoint struct {
	RunID                string
	StreamID             StreamIDString
	LastProcessedVersion uint64
	Status               string
	UpdatedAt            time.Time
}

// Validate ensures the checkpoint has valid data for storage operations.
func (c ReplayCheckpoint) Validate() error {
	if c.RunID == "" {
		return ErrEmptyRunIDSupplied
	}

	if c.StreamID == "" {
		return ErrEmptyStreamIDSupplied
	}

	return nil
}

// BuildReplayCheckpoint creates a ReplayCheckpoint with validation.
func BuildReplayCheckpoint(
	runID string,
	streamID StreamIDString,
	lastProcessedVersion uint64,
	status string,
) (ReplayCheckpoint, error) {

	checkpoint := ReplayCheckpoint{
		RunID:                runID,
		StreamID:             streamID,
		LastProcessedVersion: lastProcessedVersion,
		Status:               status,
		UpdatedAt:            time.Now(),
	}

	if err := checkpoint.Validate(); err != nil {
		return ReplayCheckpoint{}, err
	}

	return checkpoint, nil
}
