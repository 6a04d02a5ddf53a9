package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Instead of implementing full value objects, alias types and small helpers
// are used here ...

// WorkflowIDString represents a research workflow identifier.
type WorkflowIDString = string

// TaskIDString represents a task identifier within a workflow.
type TaskIDString = string

// WorkflowStatus is the lifecycle state of a research workflow.
type WorkflowStatus string

// Workflow lifecycle: Created -> Running -> {Completed, Failed, Cancelled}.
// Completed, Failed and Cancelled are terminal.
const (
	WorkflowStatusCreated   WorkflowStatus = "created"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// IsTerminal reports whether no further commands can change this workflow.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// TaskStatus is the lifecycle state of one task inside a workflow.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Methodology describes how a research workflow is carried out.
type Methodology struct {
	Name                     string   `json:"name"`
	Steps                    []string `json:"steps"`
	AgentTypes               []string `json:"agent_types"`
	EstimatedDurationMinutes uint     `json:"estimated_duration_minutes"`
}

// Finding is one result item produced by a research workflow.
type Finding struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

// Source is one external reference a research workflow consulted.
type Source struct {
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	RelevanceScore float64   `json:"relevance_score"`
	AccessedAt     time.Time `json:"accessed_at"`
}

// Results is the outcome of a completed research workflow.
type Results struct {
	Summary               string    `json:"summary"`
	Findings              []Finding `json:"findings"`
	Sources               []Source  `json:"sources"`
	ConfidenceScore       float64   `json:"confidence_score"`
	CompletionTimeMinutes uint      `json:"completion_time_minutes"`
}

// TaskInfo is the per-task bookkeeping inside the workflow state.
type TaskInfo struct {
	TaskID      TaskIDString    `json:"task_id"`
	TaskType    string          `json:"task_type"`
	AgentType   string          `json:"agent_type"`
	Status      TaskStatus      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// WorkflowStreamID maps a workflow identifier to its event stream.
func WorkflowStreamID(workflowID uuid.UUID) eventstore.StreamIDString {
	return "workflow-" + workflowID.String()
}

// ToOccurredAt normalizes a business timestamp to UTC with microsecond
// precision, matching what the storage columns can hold.
func ToOccurredAt(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
