package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskCompletedEventType is the event type identifier.
const TaskCompletedEventType = "research.workflow.task_completed"

// TaskCompletedSchemaVersion is the current payload schema version.
const TaskCompletedSchemaVersion uint = 1

// TaskCompleted records that a task of a running workflow finished with a
// result. The result document is kept opaque, its shape depends on the task
// type.
type TaskCompleted struct {
	WorkflowID WorkflowIDString `json:"workflow_id"`
	TaskID     TaskIDString     `json:"task_id"`
	Result     json.RawMessage  `json:"result"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// BuildTaskCompleted creates a new TaskCompleted event.
func BuildTaskCompleted(
	workflowID uuid.UUID,
	taskID uuid.UUID,
	result json.RawMessage,
	occurredAt time.Time,
) TaskCompleted {

	return TaskCompleted{
		WorkflowID: workflowID.String(),
		TaskID:     taskID.String(),
		Result:     result,
		OccurredAt: ToOccurredAt(occurredAt),
	}
}

// EventType returns the event type identifier.
func (e TaskCompleted) EventType() string {
	return TaskCompletedEventType
}

// SchemaVersion returns the payload schema version.
func (e TaskCompleted) SchemaVersion() uint {
	return TaskCompletedSchemaVersion
}

// HasOccurredAt returns when this event occurred.
func (e TaskCompleted) HasOccurredAt() time.Time {
	return e.OccurredAt
}
