package core

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionFailedEventType is the event type identifier.
const ExecutionFailedEventType = "research.workflow.execution_failed"

// ExecutionFailedSchemaVersion is the current payload schema version.
const ExecutionFailedSchemaVersion uint = 1

// ExecutionFailed records that a workflow gave up with an error.
type ExecutionFailed struct {
	WorkflowID   WorkflowIDString `json:"workflow_id"`
	ErrorMessage string           `json:"error"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// BuildExecutionFailed creates a new ExecutionFailed event.
func BuildExecutionFailed(workflowID uuid.UUID, errorMessage string, occurredAt time.Time) ExecutionFailed {
	return ExecutionFailed{
		WorkflowID:   workflowID.String(),
		ErrorMessage: errorMessage,
		OccurredAt:   ToOccurredAt(occurredAt),
	}
}

// EventType returns the event type identifier.
func (e ExecutionFailed) EventType() string {
	return ExecutionFailedEventType
}

// SchemaVersion returns the payload schema version.
func (e ExecutionFailed) SchemaVersion() uint {
	return ExecutionFailedSchemaVersion
}

// HasOccurredAt returns when this event occurred.
func (e ExecutionFailed) HasOccurredAt() time.Time {
	return e.OccurredAt
}
