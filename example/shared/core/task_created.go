package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskCreatedEventType is the event type identifier.
const TaskCreatedEventType = "research.workflow.task_created"

// TaskCreatedSchemaVersion is the current payload schema version.
const TaskCreatedSchemaVersion uint = 1

// TaskCreated records that a task was added to a running workflow.
type TaskCreated struct {
	WorkflowID WorkflowIDString `json:"workflow_id"`
	TaskID     TaskIDString     `json:"task_id"`
	TaskType   string           `json:"task_type"`
	AgentType  string           `json:"agent_type"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// BuildTaskCreated creates a new TaskCreated event.
func BuildTaskCreated(
	workflowID uuid.UUID,
	taskID uuid.UUID,
	taskType string,
	agentType string,
	occurredAt time.Time,
) TaskCreated {

	return TaskCreated{
		WorkflowID: workflowID.String(),
		TaskID:     taskID.String(),
		TaskType:   taskType,
		AgentType:  agentType,
		OccurredAt: ToOccurredAt(occurredAt),
	}
}

// EventType returns the event type identifier.
func (e TaskCreated) EventType() string {
	return TaskCreatedEventType
}

// SchemaVersion returns the payload schema version.
func (e TaskCreated) SchemaVersion() uint {
	return TaskCreatedSchemaVersion
}

// HasOccurredAt returns when this event occurred.
func (e TaskCreated) HasOccurredAt() time.Time {
	return e.OccurredAt
}
