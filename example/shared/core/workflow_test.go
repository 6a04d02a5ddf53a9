package core_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

func testMethodology() core.Methodology {
	return core.Methodology{
		Name:                     "deep research",
		Steps:                    []string{"search", "analyze"},
		AgentTypes:               []string{"researcher"},
		EstimatedDurationMinutes: 30,
	}
}

func givenCreatedWorkflow(t *testing.T, workflowID uuid.UUID, fakeClock time.Time) *core.Workflow {
	t.Helper()

	workflow := core.NewWorkflow(core.WorkflowStreamID(workflowID))
	require.NoError(t, workflow.Create(workflowID, "Market study", "state of the market", testMethodology(), fakeClock))

	return workflow
}

func givenRunningWorkflow(t *testing.T, workflowID uuid.UUID, fakeClock time.Time) *core.Workflow {
	t.Helper()

	workflow := givenCreatedWorkflow(t, workflowID, fakeClock)
	require.NoError(t, workflow.StartExecution(fakeClock.Add(time.Second)))

	return workflow
}

func Test_CreateWorkflow(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()

	// act
	workflow := core.NewWorkflow(core.WorkflowStreamID(workflowID))
	err := workflow.Create(workflowID, "Market study", "state of the market", testMethodology(), fakeClock)

	// assert
	require.NoError(t, err, "creating the workflow should succeed")
	assert.Equal(t, core.WorkflowStatusCreated, workflow.Status())
	assert.Equal(t, workflowID.String(), workflow.WorkflowID())
	assert.Equal(t, "Market study", workflow.Name())
	assert.Len(t, workflow.UncommittedEvents(), 1)
}

func Test_CreateWorkflow_When_InputIsInvalid(t *testing.T) {
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()

	t.Run("empty name", func(t *testing.T) {
		workflow := core.NewWorkflow(core.WorkflowStreamID(workflowID))
		err := workflow.Create(workflowID, "  ", "query", testMethodology(), fakeClock)
		assert.ErrorIs(t, err, aggregate.ErrCommandRejected)
	})

	t.Run("empty query", func(t *testing.T) {
		workflow := core.NewWorkflow(core.WorkflowStreamID(workflowID))
		err := workflow.Create(workflowID, "name", "", testMethodology(), fakeClock)
		assert.ErrorIs(t, err, aggregate.ErrCommandRejected)
	})
}

func Test_CreateWorkflow_When_AlreadyCreated_IsIdempotent(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()
	workflow := givenCreatedWorkflow(t, workflowID, fakeClock)

	// act
	err := workflow.Create(workflowID, "Market study", "state of the market", testMethodology(), fakeClock)

	// assert
	require.NoError(t, err, "re-creating must not fail")
	assert.Len(t, workflow.UncommittedEvents(), 1, "re-creating must not record another event")
}

func Test_StartExecution(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()
	workflow := givenCreatedWorkflow(t, workflowID, fakeClock)

	// act
	err := workflow.StartExecution(fakeClock.Add(time.Second))

	// assert
	require.NoError(t, err, "starting the workflow should succeed")
	assert.Equal(t, core.WorkflowStatusRunning, workflow.Status())
}

func Test_StartExecution_When_AlreadyRunning_IsIdempotent(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)
	eventsBefore := len(workflow.UncommittedEvents())

	// act
	err := workflow.StartExecution(fakeClock.Add(time.Minute))

	// assert
	require.NoError(t, err)
	assert.Len(t, workflow.UncommittedEvents(), eventsBefore)
}

func Test_StartExecution_When_WorkflowIsTerminal(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)
	require.NoError(t, workflow.Cancel("operator abort", fakeClock.Add(time.Minute)))

	// act
	err := workflow.StartExecution(fakeClock.Add(2 * time.Minute))

	// assert
	var rejected *aggregate.RejectedCommandError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, core.CommandStartExecution, rejected.Command)
}

func Test_CreateTask_And_CompleteTask(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)
	taskID := uuid.New()

	// act
	createErr := workflow.CreateTask(taskID, "web_search", "researcher", fakeClock.Add(2*time.Second))
	completeErr := workflow.CompleteTask(taskID, json.RawMessage(`{"hits":12}`), fakeClock.Add(3*time.Second))

	// assert
	require.NoError(t, createErr, "creating the task should succeed")
	require.NoError(t, completeErr, "completing the task should succeed")

	tasks := workflow.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, core.TaskStatusCompleted, tasks[0].Status)
	assert.JSONEq(t, `{"hits":12}`, string(tasks[0].Result))
	assert.Zero(t, workflow.PendingTaskCount())
}

func Test_CreateTask_When_WorkflowIsNotRunning(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenCreatedWorkflow(t, uuid.New(), fakeClock)

	// act
	err := workflow.CreateTask(uuid.New(), "web_search", "researcher", fakeClock.Add(time.Second))

	// assert
	assert.ErrorIs(t, err, aggregate.ErrCommandRejected)
}

func Test_CreateTask_When_TaskAlreadyExists_IsIdempotent(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)
	taskID := uuid.New()
	require.NoError(t, workflow.CreateTask(taskID, "web_search", "researcher", fakeClock.Add(2*time.Second)))
	eventsBefore := len(workflow.UncommittedEvents())

	// act
	err := workflow.CreateTask(taskID, "web_search", "researcher", fakeClock.Add(3*time.Second))

	// assert
	require.NoError(t, err)
	assert.Len(t, workflow.UncommittedEvents(), eventsBefore)
	assert.Len(t, workflow.Tasks(), 1)
}

func Test_CompleteTask_When_TaskIsUnknown(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)

	// act
	err := workflow.CompleteTask(uuid.New(), json.RawMessage(`{}`), fakeClock.Add(time.Second))

	// assert
	var rejected *aggregate.RejectedCommandError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, core.CommandCompleteTask, rejected.Command)
}

func Test_CompleteTask_When_AlreadyCompleted_IsIdempotent(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)
	taskID := uuid.New()
	require.NoError(t, workflow.CreateTask(taskID, "web_search", "researcher", fakeClock.Add(2*time.Second)))
	require.NoError(t, workflow.CompleteTask(taskID, json.RawMessage(`{"hits":1}`), fakeClock.Add(3*time.Second)))
	eventsBefore := len(workflow.UncommittedEvents())

	// act
	err := workflow.CompleteTask(taskID, json.RawMessage(`{"hits":2}`), fakeClock.Add(4*time.Second))

	// assert
	require.NoError(t, err)
	assert.Len(t, workflow.UncommittedEvents(), eventsBefore)
}

func Test_CompleteExecution(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)
	taskID := uuid.New()
	require.NoError(t, workflow.CreateTask(taskID, "web_search", "researcher", fakeClock.Add(2*time.Second)))
	require.NoError(t, workflow.CompleteTask(taskID, json.RawMessage(`{"hits":3}`), fakeClock.Add(3*time.Second)))

	results := core.Results{Summary: "all good", ConfidenceScore: 0.9, CompletionTimeMinutes: 12}

	// act
	err := workflow.CompleteExecution(results, fakeClock.Add(4*time.Second))

	// assert
	require.NoError(t, err, "completing the workflow should succeed")
	assert.Equal(t, core.WorkflowStatusCompleted, workflow.Status())
	require.NotNil(t, workflow.Results())
	assert.Equal(t, "all good", workflow.Results().Summary)
}

func Test_CompleteExecution_When_TasksArePending(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)
	require.NoError(t, workflow.CreateTask(uuid.New(), "web_search", "researcher", fakeClock.Add(2*time.Second)))

	// act
	err := workflow.CompleteExecution(core.Results{Summary: "too early"}, fakeClock.Add(3*time.Second))

	// assert
	var rejected *aggregate.RejectedCommandError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, core.CommandCompleteExecution, rejected.Command)
	assert.Equal(t, core.WorkflowStatusRunning, workflow.Status())
}

func Test_FailExecution(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)

	// act
	err := workflow.FailExecution("search provider unavailable", fakeClock.Add(time.Minute))

	// assert
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusFailed, workflow.Status())
	assert.Equal(t, "search provider unavailable", workflow.ErrorMessage())
}

func Test_FailExecution_When_WorkflowIsCompleted(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenRunningWorkflow(t, uuid.New(), fakeClock)
	require.NoError(t, workflow.CompleteExecution(core.Results{Summary: "done"}, fakeClock.Add(time.Minute)))

	// act
	err := workflow.FailExecution("late failure", fakeClock.Add(2*time.Minute))

	// assert
	assert.ErrorIs(t, err, aggregate.ErrCommandRejected)
	assert.Equal(t, core.WorkflowStatusCompleted, workflow.Status())
}

func Test_Cancel(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflow := givenCreatedWorkflow(t, uuid.New(), fakeClock)

	// act
	err := workflow.Cancel("no longer needed", fakeClock.Add(time.Second))

	// assert
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowStatusCancelled, workflow.Status())

	// a second cancel is idempotent
	eventsBefore := len(workflow.UncommittedEvents())
	require.NoError(t, workflow.Cancel("again", fakeClock.Add(2*time.Second)))
	assert.Len(t, workflow.UncommittedEvents(), eventsBefore)
}

func Test_Workflow_State_SurvivesSnapshotRoundTrip(t *testing.T) {
	// setup
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()
	workflow := givenRunningWorkflow(t, workflowID, fakeClock)
	taskID := uuid.New()
	require.NoError(t, workflow.CreateTask(taskID, "web_search", "researcher", fakeClock.Add(2*time.Second)))

	// act
	state, marshalErr := workflow.MarshalState()
	require.NoError(t, marshalErr, "marshaling the state should succeed")

	restored := core.NewWorkflow(core.WorkflowStreamID(workflowID))
	unmarshalErr := restored.UnmarshalState(state)

	// assert
	require.NoError(t, unmarshalErr, "unmarshaling the state should succeed")
	assert.Equal(t, workflow.Status(), restored.Status())
	assert.Equal(t, workflow.WorkflowID(), restored.WorkflowID())
	assert.Equal(t, workflow.Tasks(), restored.Tasks())
}

func Test_Workflow_Apply_When_EventTypeIsUnknown(t *testing.T) {
	workflow := core.NewWorkflow(core.WorkflowStreamID(uuid.New()))

	err := workflow.Apply(unknownEvent{})

	assert.Error(t, err)
}

type unknownEvent struct{}

func (e unknownEvent) EventType() string        { return "research.workflow.unknown" }
func (e unknownEvent) SchemaVersion() uint      { return 1 }
func (e unknownEvent) HasOccurredAt() time.Time { return time.Unix(0, 0).UTC() }
