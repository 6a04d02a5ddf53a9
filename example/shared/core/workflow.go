package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/codec"
	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Command names as they appear in rejection errors.
const (
	CommandCreateWorkflow    = "CreateWorkflow"
	CommandStartExecution    = "StartExecution"
	CommandCreateTask        = "CreateTask"
	CommandCompleteTask      = "CompleteTask"
	CommandCompleteExecution = "CompleteExecution"
	CommandFailExecution     = "FailExecution"
	CommandCancelWorkflow    = "CancelWorkflow"
)

// workflowState is the snapshot-able state of one research workflow. All
// mutation happens in Apply, commands only validate and record events.
type workflowState struct {
	WorkflowID   WorkflowIDString `json:"workflow_id"`
	Name         string           `json:"name"`
	Query        string           `json:"query"`
	Methodology  Methodology      `json:"methodology"`
	Status       WorkflowStatus   `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	Tasks        []TaskInfo       `json:"tasks"`
	Results      *Results         `json:"results,omitempty"`
	ErrorMessage string           `json:"error,omitempty"`
}

// Workflow is the event-sourced aggregate of one research workflow.
//
// Its command methods validate against the current state and record events
// through aggregate.RecordThat; a command whose effect already holds records
// nothing and succeeds, a command the state forbids returns a
// RejectedCommandError.
type Workflow struct {
	*aggregate.Base
	state workflowState
}

// NewWorkflow creates an empty workflow aggregate bound to the given stream.
// Repositories use it as the root factory.
func NewWorkflow(streamID eventstore.StreamIDString) *Workflow {
	return &Workflow{Base: aggregate.NewBase(streamID)}
}

/*** Command methods ***/

// Create brings the workflow into existence. Creating a workflow that
// already exists is idempotent.
func (w *Workflow) Create(
	workflowID uuid.UUID,
	name string,
	query string,
	methodology Methodology,
	occurredAt time.Time,
) error {

	if w.state.Status != "" {
		return nil
	}

	if strings.TrimSpace(name) == "" {
		return aggregate.BuildRejectedCommandError(CommandCreateWorkflow, "workflow name must not be empty")
	}

	if strings.TrimSpace(query) == "" {
		return aggregate.BuildRejectedCommandError(CommandCreateWorkflow, "research query must not be empty")
	}

	return aggregate.RecordThat(w, BuildWorkflowCreated(workflowID, name, query, methodology, occurredAt))
}

// StartExecution moves the workflow from Created to Running. Starting a
// workflow that is already running is idempotent.
func (w *Workflow) StartExecution(occurredAt time.Time) error {
	if w.state.Status == WorkflowStatusRunning {
		return nil
	}

	if w.state.Status != WorkflowStatusCreated {
		return aggregate.BuildRejectedCommandError(CommandStartExecution,
			fmt.Sprintf("cannot start workflow in status %q", w.state.Status))
	}

	return aggregate.RecordThat(w, ExecutionStarted{
		WorkflowID: w.state.WorkflowID,
		OccurredAt: ToOccurredAt(occurredAt),
	})
}

// CreateTask adds a task to a running workflow. Creating a task that already
// exists is idempotent.
func (w *Workflow) CreateTask(taskID uuid.UUID, taskType string, agentType string, occurredAt time.Time) error {
	if w.taskByID(taskID.String()) != nil {
		return nil
	}

	if w.state.Status != WorkflowStatusRunning {
		return aggregate.BuildRejectedCommandError(CommandCreateTask,
			fmt.Sprintf("cannot create task on workflow in status %q", w.state.Status))
	}

	if strings.TrimSpace(taskType) == "" {
		return aggregate.BuildRejectedCommandError(CommandCreateTask, "task type must not be empty")
	}

	return aggregate.RecordThat(w, TaskCreated{
		WorkflowID: w.state.WorkflowID,
		TaskID:     taskID.String(),
		TaskType:   taskType,
		AgentType:  agentType,
		OccurredAt: ToOccurredAt(occurredAt),
	})
}

// CompleteTask records the result of one task. Completing an already
// completed task is idempotent.
func (w *Workflow) CompleteTask(taskID uuid.UUID, result json.RawMessage, occurredAt time.Time) error {
	task := w.taskByID(taskID.String())
	if task != nil && task.Status == TaskStatusCompleted {
		return nil
	}

	if w.state.Status != WorkflowStatusRunning {
		return aggregate.BuildRejectedCommandError(CommandCompleteTask,
			fmt.Sprintf("cannot complete task on workflow in status %q", w.state.Status))
	}

	if task == nil {
		return aggregate.BuildRejectedCommandError(CommandCompleteTask,
			fmt.Sprintf("unknown task %q", taskID.String()))
	}

	return aggregate.RecordThat(w, TaskCompleted{
		WorkflowID: w.state.WorkflowID,
		TaskID:     taskID.String(),
		Result:     result,
		OccurredAt: ToOccurredAt(occurredAt),
	})
}

// CompleteExecution finishes the workflow successfully. Completing an already
// completed workflow is idempotent; pending tasks forbid completion.
func (w *Workflow) CompleteExecution(results Results, occurredAt time.Time) error {
	if w.state.Status == WorkflowStatusCompleted {
		return nil
	}

	if w.state.Status != WorkflowStatusRunning {
		return aggregate.BuildRejectedCommandError(CommandCompleteExecution,
			fmt.Sprintf("cannot complete workflow in status %q", w.state.Status))
	}

	if pending := w.PendingTaskCount(); pending > 0 {
		return aggregate.BuildRejectedCommandError(CommandCompleteExecution,
			fmt.Sprintf("workflow still has %d pending tasks", pending))
	}

	return aggregate.RecordThat(w, ExecutionCompleted{
		WorkflowID: w.state.WorkflowID,
		Results:    results,
		OccurredAt: ToOccurredAt(occurredAt),
	})
}

// FailExecution gives the workflow up with an error. Failing an already
// failed workflow is idempotent; the other terminal states reject it.
func (w *Workflow) FailExecution(errorMessage string, occurredAt time.Time) error {
	if w.state.Status == WorkflowStatusFailed {
		return nil
	}

	if w.state.Status != WorkflowStatusCreated && w.state.Status != WorkflowStatusRunning {
		return aggregate.BuildRejectedCommandError(CommandFailExecution,
			fmt.Sprintf("cannot fail workflow in status %q", w.state.Status))
	}

	return aggregate.RecordThat(w, ExecutionFailed{
		WorkflowID:   w.state.WorkflowID,
		ErrorMessage: errorMessage,
		OccurredAt:   ToOccurredAt(occurredAt),
	})
}

// Cancel abandons the workflow on request. Cancelling an already cancelled
// workflow is idempotent; the other terminal states reject it.
func (w *Workflow) Cancel(reason string, occurredAt time.Time) error {
	if w.state.Status == WorkflowStatusCancelled {
		return nil
	}

	if w.state.Status != WorkflowStatusCreated && w.state.Status != WorkflowStatusRunning {
		return aggregate.BuildRejectedCommandError(CommandCancelWorkflow,
			fmt.Sprintf("cannot cancel workflow in status %q", w.state.Status))
	}

	return aggregate.RecordThat(w, WorkflowCancelled{
		WorkflowID: w.state.WorkflowID,
		Reason:     reason,
		OccurredAt: ToOccurredAt(occurredAt),
	})
}

/*** aggregate.Root implementation ***/

// Apply mutates the workflow state from one event. Events are facts, so
// Apply performs no business validation; an event type this aggregate does
// not know is an error.
func (w *Workflow) Apply(event codec.DomainEvent) error {
	switch e := event.(type) {
	case WorkflowCreated:
		w.state.WorkflowID = e.WorkflowID
		w.state.Name = e.Name
		w.state.Query = e.Query
		w.state.Methodology = e.Methodology
		w.state.Status = WorkflowStatusCreated
		w.state.CreatedAt = e.OccurredAt

	case ExecutionStarted:
		startedAt := e.OccurredAt
		w.state.Status = WorkflowStatusRunning
		w.state.StartedAt = &startedAt

	case TaskCreated:
		w.state.Tasks = append(w.state.Tasks, TaskInfo{
			TaskID:    e.TaskID,
			TaskType:  e.TaskType,
			AgentType: e.AgentType,
			Status:    TaskStatusPending,
			CreatedAt: e.OccurredAt,
		})

	case TaskCompleted:
		if task := w.taskByID(e.TaskID); task != nil {
			completedAt := e.OccurredAt
			task.Status = TaskStatusCompleted
			task.CompletedAt = &completedAt
			task.Result = e.Result
		}

	case ExecutionCompleted:
		finishedAt := e.OccurredAt
		results := e.Results
		w.state.Status = WorkflowStatusCompleted
		w.state.Results = &results
		w.state.FinishedAt = &finishedAt

	case ExecutionFailed:
		finishedAt := e.OccurredAt
		w.state.Status = WorkflowStatusFailed
		w.state.ErrorMessage = e.ErrorMessage
		w.state.FinishedAt = &finishedAt

	case WorkflowCancelled:
		finishedAt := e.OccurredAt
		w.state.Status = WorkflowStatusCancelled
		w.state.FinishedAt = &finishedAt

	default:
		return fmt.Errorf("workflow aggregate cannot apply event of type %q", event.EventType())
	}

	return nil
}

// MarshalState serializes the workflow state for snapshotting.
func (w *Workflow) MarshalState() (json.RawMessage, error) {
	return jsoniter.ConfigFastest.Marshal(w.state)
}

// UnmarshalState restores the workflow state from a snapshot.
func (w *Workflow) UnmarshalState(state json.RawMessage) error {
	return jsoniter.ConfigFastest.Unmarshal(state, &w.state)
}

/*** Accessors ***/

// WorkflowID returns the identifier of this workflow.
func (w *Workflow) WorkflowID() WorkflowIDString {
	return w.state.WorkflowID
}

// Name returns the workflow name.
func (w *Workflow) Name() string {
	return w.state.Name
}

// Query returns the research query this workflow answers.
func (w *Workflow) Query() string {
	return w.state.Query
}

// Methodology returns how this workflow is carried out.
func (w *Workflow) Methodology() Methodology {
	return w.state.Methodology
}

// Status returns the current lifecycle state.
func (w *Workflow) Status() WorkflowStatus {
	return w.state.Status
}

// Tasks returns a copy of the per-task bookkeeping.
func (w *Workflow) Tasks() []TaskInfo {
	tasks := make([]TaskInfo, len(w.state.Tasks))
	copy(tasks, w.state.Tasks)

	return tasks
}

// PendingTaskCount returns the number of tasks not completed yet.
func (w *Workflow) PendingTaskCount() int {
	pending := 0
	for _, task := range w.state.Tasks {
		if task.Status != TaskStatusCompleted {
			pending++
		}
	}

	return pending
}

// Results returns the outcome of a completed workflow, nil before completion.
func (w *Workflow) Results() *Results {
	return w.state.Results
}

// ErrorMessage returns why the workflow failed, empty otherwise.
func (w *Workflow) ErrorMessage() string {
	return w.state.ErrorMessage
}

func (w *Workflow) taskByID(taskID TaskIDString) *TaskInfo {
	for i := range w.state.Tasks {
		if w.state.Tasks[i].TaskID == taskID {
			return &w.state.Tasks[i]
		}
	}

	return nil
}
