package workflowstatus_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/eventstore/memoryengine"
	"github.com/versioned-streams/eventstore-go/example/projections/workflowstatus"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
	"github.com/versioned-streams/eventstore-go/example/shared/shell"
	"github.com/versioned-streams/eventstore-go/replay"
)

const (
	waitTimeout  = 3 * time.Second
	pollInterval = 5 * time.Millisecond
)

type testEnv struct {
	es         *memoryengine.EventStore
	repository *aggregate.Repository[*core.Workflow]
	projection *workflowstatus.Projection
}

func setupEnv(t *testing.T) testEnv {
	t.Helper()

	es := memoryengine.NewEventStore()

	registry, err := shell.NewWorkflowRegistry()
	require.NoError(t, err, "error building the registry")

	repository, err := aggregate.NewRepository(es, registry, core.NewWorkflow)
	require.NoError(t, err, "error building the repository")

	projection, err := workflowstatus.NewProjection(registry)
	require.NoError(t, err, "error building the projection")

	return testEnv{es: es, repository: repository, projection: projection}
}

func saveWorkflow(t *testing.T, env testEnv, workflow *core.Workflow) {
	t.Helper()

	_, err := env.repository.Save(context.Background(), workflow, shell.NewCommandMetadata())
	require.NoError(t, err, "error saving the workflow")
}

// seedCompletedWorkflow records a full lifecycle with two completed tasks.
func seedCompletedWorkflow(t *testing.T, env testEnv, workflowID uuid.UUID, fakeClock time.Time) {
	t.Helper()

	workflow := core.NewWorkflow(core.WorkflowStreamID(workflowID))
	require.NoError(t, workflow.Create(workflowID, "climate study", "impact of x on y", core.Methodology{Name: "deep research"}, fakeClock))
	require.NoError(t, workflow.StartExecution(fakeClock.Add(time.Second)))

	for i := 0; i < 2; i++ {
		taskID := uuid.New()
		require.NoError(t, workflow.CreateTask(taskID, "web_search", "researcher", fakeClock.Add(2*time.Second)))
		require.NoError(t, workflow.CompleteTask(taskID, json.RawMessage(`{}`), fakeClock.Add(3*time.Second)))
	}

	require.NoError(t, workflow.CompleteExecution(core.Results{Summary: "done"}, fakeClock.Add(4*time.Second)))

	saveWorkflow(t, env, workflow)
}

func runReplayToCompletion(t *testing.T, env testEnv) {
	t.Helper()
	ctx := context.Background()

	service, err := replay.NewService(env.es, replay.WithBatchSize(3))
	require.NoError(t, err, "error building the replay service")
	require.NoError(t, service.RegisterHandler(env.projection))

	runID, err := service.StartFull(ctx)
	require.NoError(t, err, "error starting the run")

	require.Eventually(t, func() bool {
		progress, statusErr := service.Status(ctx, runID)
		return statusErr == nil && progress.Status == replay.StatusCompleted
	}, waitTimeout, pollInterval, "the run should complete")
}

func Test_Projection_BuildsOneViewPerWorkflow(t *testing.T) {
	// setup
	env := setupEnv(t)
	fakeClock := time.Unix(0, 0).UTC()

	completedID := uuid.New()
	seedCompletedWorkflow(t, env, completedID, fakeClock)

	createdID := uuid.New()
	created := core.NewWorkflow(core.WorkflowStreamID(createdID))
	require.NoError(t, created.Create(createdID, "pending study", "open question", core.Methodology{Name: "survey"}, fakeClock))
	saveWorkflow(t, env, created)

	cancelledID := uuid.New()
	cancelled := core.NewWorkflow(core.WorkflowStreamID(cancelledID))
	require.NoError(t, cancelled.Create(cancelledID, "doomed study", "question", core.Methodology{Name: "survey"}, fakeClock))
	require.NoError(t, cancelled.StartExecution(fakeClock.Add(time.Second)))
	require.NoError(t, cancelled.Cancel("budget cut", fakeClock.Add(2*time.Second)))
	saveWorkflow(t, env, cancelled)

	// act
	runReplayToCompletion(t, env)

	// assert
	completedView, found := env.projection.ViewFor(core.WorkflowStreamID(completedID))
	require.True(t, found, "the completed workflow should have a view")
	assert.Equal(t, completedID.String(), completedView.WorkflowID)
	assert.Equal(t, "climate study", completedView.Name)
	assert.Equal(t, core.WorkflowStatusCompleted, completedView.Status)
	assert.Equal(t, 2, completedView.TasksTotal)
	assert.Equal(t, 2, completedView.TasksCompleted)

	createdViews := env.projection.ViewsWithStatus(core.WorkflowStatusCreated)
	require.Len(t, createdViews, 1)
	assert.Equal(t, createdID.String(), createdViews[0].WorkflowID)

	cancelledView, found := env.projection.ViewFor(core.WorkflowStreamID(cancelledID))
	require.True(t, found)
	assert.Equal(t, core.WorkflowStatusCancelled, cancelledView.Status)
}

func Test_Projection_IsIdempotent_UnderRedelivery(t *testing.T) {
	// setup
	env := setupEnv(t)
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()
	seedCompletedWorkflow(t, env, workflowID, fakeClock)

	runReplayToCompletion(t, env)

	// act: a second full replay redelivers every event
	runReplayToCompletion(t, env)

	// assert: the counters did not double
	view, found := env.projection.ViewFor(core.WorkflowStreamID(workflowID))
	require.True(t, found)
	assert.Equal(t, 2, view.TasksTotal)
	assert.Equal(t, 2, view.TasksCompleted)
	assert.Equal(t, core.WorkflowStatusCompleted, view.Status)
}

func Test_Projection_Handle_When_PayloadIsBroken(t *testing.T) {
	// setup
	env := setupEnv(t)

	broken, err := eventstore.BuildStoredEventWithoutCausation(
		"workflow-"+uuid.NewString(),
		core.WorkflowCreatedEventType,
		7, // no decoder and no upcaster knows this version
		[]byte(`{}`),
		time.Unix(0, 0).UTC(),
		uuid.NewString(),
	)
	require.NoError(t, err)

	// act
	err = env.projection.Handle(context.Background(), broken)

	// assert
	assert.Error(t, err, "an undecodable payload must surface an error")
}

func Test_NewProjection_When_RegistryIsNil(t *testing.T) {
	// act
	projection, err := workflowstatus.NewProjection(nil)

	// assert
	assert.ErrorIs(t, err, workflowstatus.ErrNilRegistrySupplied)
	assert.Nil(t, projection)
}
