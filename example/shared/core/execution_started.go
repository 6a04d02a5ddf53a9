package core

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStartedEventType is the event type identifier.
const ExecutionStartedEventType = "research.workflow.execution_started"

// ExecutionStartedSchemaVersion is the current payload schema version.
const ExecutionStartedSchemaVersion uint = 1

// ExecutionStarted records that a workflow moved from Created to Running.
type ExecutionStarted struct {
	WorkflowID WorkflowIDString `json:"workflow_id"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// BuildExecutionStarted creates a new ExecutionStarted event.
func BuildExecutionStarted(workflowID uuid.UUID, occurredAt time.Time) ExecutionStarted {
	return ExecutionStarted{
		WorkflowID: workflowID.String(),
		OccurredAt: ToOccurredAt(occurredAt),
	}
}

// EventType returns the event type identifier.
func (e ExecutionStarted) EventType() string {
	return ExecutionStartedEventType
}

// SchemaVersion returns the payload schema version.
func (e ExecutionStarted) SchemaVersion() uint {
	return ExecutionStartedSchemaVersion
}

// HasOccurredAt returns when this event occurred.
func (e ExecutionStarted) HasOccurredAt() time.Time {
	return e.OccurredAt
}
