package replay

import (
	"time"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Status is the lifecycle state of a replay run.
type Status string

// Replay run lifecycle: Running -> {Completed, Failed, Paused, Cancelled};
// Paused and Failed runs can be resumed, Completed and Cancelled are final.
const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FailurePolicy decides what happens when a handler exhausts its retries on
// one event.
type FailurePolicy string

const (
	// PolicySkipAndLog records the event as skipped and continues the run.
	// Skipped events are never silently dropped, they are logged and counted.
	PolicySkipAndLog FailurePolicy = "skip_and_log"

	// PolicyFailRun stops the run with StatusFailed on the first exhausted event.
	PolicyFailRun FailurePolicy = "fail_run"
)

// Progress is a point-in-time view of one replay run.
//
// The counters reflect the current process only; after a resume they restart
// at zero while GlobalPosition and StreamCheckpoints carry over from the
// persisted checkpoints.
type Progress struct {
	RunID             string
	Status            Status
	GlobalPosition    eventstore.GlobalPositionUint64
	EventsProcessed   uint64
	EventsSkipped     uint64
	StreamCheckpoints map[eventstore.StreamIDString]eventstore.StreamVersionUint
	StartedAt         time.Time
	UpdatedAt         time.Time
	FailureReason     string
}

// clone detaches the map so callers can not mutate the run's bookkeeping.
func (p Progress) clone() Progress {
	copied := p

	copied.StreamCheckpoints = make(map[eventstore.StreamIDString]eventstore.StreamVersionUint, len(p.StreamCheckpoints))
	for streamID, version := range p.StreamCheckpoints {
		copied.StreamCheckpoints[streamID] = version
	}

	return copied
}

// progressFromCheckpoints rebuilds the persisted part of a run's progress
// from its checkpoint rows.
func progressFromCheckpoints(runID string, checkpoints eventstore.ReplayCheckpoints) Progress {
	progress := Progress{
		RunID:             runID,
		StreamCheckpoints: make(map[eventstore.StreamIDString]eventstore.StreamVersionUint, len(checkpoints)),
	}

	for _, checkpoint := range checkpoints {
		if checkpoint.StreamID == eventstore.GlobalCheckpointStreamID {
			progress.GlobalPosition = checkpoint.LastProcessedVersion
			progress.Status = Status(checkpoint.Status)
			progress.UpdatedAt = checkpoint.UpdatedAt

			continue
		}

		progress.StreamCheckpoints[checkpoint.StreamID] = eventstore.StreamVersionUint(checkpoint.LastProcessedVersion)
	}

	return progress
}
