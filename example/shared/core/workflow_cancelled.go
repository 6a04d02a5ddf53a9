package core

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowCancelledEventType is the event type identifier.
const WorkflowCancelledEventType = "research.workflow.cancelled"

// WorkflowCancelledSchemaVersion is the current payload schema version.
const WorkflowCancelledSchemaVersion uint = 1

// WorkflowCancelled records that a workflow was abandoned on request before
// it finished.
type WorkflowCancelled struct {
	WorkflowID WorkflowIDString `json:"workflow_id"`
	Reason     string           `json:"reason"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// BuildWorkflowCancelled creates a new WorkflowCancelled event.
func BuildWorkflowCancelled(workflowID uuid.UUID, reason string, occurredAt time.Time) WorkflowCancelled {
	return WorkflowCancelled{
		WorkflowID: workflowID.String(),
		Reason:     reason,
		OccurredAt: ToOccurredAt(occurredAt),
	}
}

// EventType returns the event type identifier.
func (e WorkflowCancelled) EventType() string {
	return WorkflowCancelledEventType
}

// SchemaVersion returns the payload schema version.
func (e WorkflowCancelled) SchemaVersion() uint {
	return WorkflowCancelledSchemaVersion
}

// HasOccurredAt returns when this event occurred.
func (e WorkflowCancelled) HasOccurredAt() time.Time {
	return e.OccurredAt
}
