package core

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionCompletedEventType is the event type identifier.
const ExecutionCompletedEventType = "research.workflow.execution_completed"

// ExecutionCompletedSchemaVersion is the current payload schema version.
const ExecutionCompletedSchemaVersion uint = 1

// ExecutionCompleted records that a workflow finished successfully with its
// aggregated results.
type ExecutionCompleted struct {
	WorkflowID WorkflowIDString `json:"workflow_id"`
	Results    Results          `json:"results"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// BuildExecutionCompleted creates a new ExecutionCompleted event.
func BuildExecutionCompleted(workflowID uuid.UUID, results Results, occurredAt time.Time) ExecutionCompleted {
	return ExecutionCompleted{
		WorkflowID: workflowID.String(),
		Results:    results,
		OccurredAt: ToOccurredAt(occurredAt),
	}
}

// EventType returns the event type identifier.
func (e ExecutionCompleted) EventType() string {
	return ExecutionCompletedEventType
}

// SchemaVersion returns the payload schema version.
func (e ExecutionCompleted) SchemaVersion() uint {
	return ExecutionCompletedSchemaVersion
}

// HasOccurredAt returns when this event occurred.
func (e ExecutionCompleted) HasOccurredAt() time.Time {
	return e.OccurredAt
}
