package core

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowCreatedEventType is the event type identifier.
const WorkflowCreatedEventType = "research.workflow.created"

// WorkflowCreatedSchemaVersion is the current payload schema version.
// Version 1 carried the methodology as a plain name string; version 2 carries
// the structured Methodology object. Old payloads are upcast on read.
const WorkflowCreatedSchemaVersion uint = 2

// WorkflowCreated records that a research workflow came into existence.
type WorkflowCreated struct {
	WorkflowID  WorkflowIDString `json:"workflow_id"`
	Name        string           `json:"name"`
	Query       string           `json:"query"`
	Methodology Methodology      `json:"methodology"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// BuildWorkflowCreated creates a new WorkflowCreated event.
func BuildWorkflowCreated(
	workflowID uuid.UUID,
	name string,
	query string,
	methodology Methodology,
	occurredAt time.Time,
) WorkflowCreated {

	return WorkflowCreated{
		WorkflowID:  workflowID.String(),
		Name:        name,
		Query:       query,
		Methodology: methodology,
		OccurredAt:  ToOccurredAt(occurredAt),
	}
}

// EventType returns the event type identifier.
func (e WorkflowCreated) EventType() string {
	return WorkflowCreatedEventType
}

// SchemaVersion returns the payload schema version.
func (e WorkflowCreated) SchemaVersion() uint {
	return WorkflowCreatedSchemaVersion
}

// HasOccurredAt returns when this event occurred.
func (e WorkflowCreated) HasOccurredAt() time.Time {
	return e.OccurredAt
}
