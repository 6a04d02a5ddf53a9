package completeexecution_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/eventstore/memoryengine"
	"github.com/versioned-streams/eventstore-go/example/features/command/completeexecution"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
	"github.com/versioned-streams/eventstore-go/example/shared/shell"
)

type testEnv struct {
	handler    completeexecution.CommandHandler
	repository *aggregate.Repository[*core.Workflow]
}

func setupEnv(t *testing.T) testEnv {
	t.Helper()

	es := memoryengine.NewEventStore()

	registry, err := shell.NewWorkflowRegistry()
	require.NoError(t, err, "error building the registry")

	repository, err := aggregate.NewRepository(es, registry, core.NewWorkflow)
	require.NoError(t, err, "error building the repository")

	handler, err := completeexecution.NewCommandHandler(repository)
	require.NoError(t, err, "error building the command handler")

	return testEnv{handler: handler, repository: repository}
}

func givenRunningWorkflow(
	t *testing.T,
	env testEnv,
	workflowID uuid.UUID,
	fakeClock time.Time,
	seed func(workflow *core.Workflow),
) {
	t.Helper()

	workflow := core.NewWorkflow(core.WorkflowStreamID(workflowID))
	require.NoError(t, workflow.Create(workflowID, "study", "query", core.Methodology{Name: "deep research"}, fakeClock))
	require.NoError(t, workflow.StartExecution(fakeClock.Add(time.Second)))

	if seed != nil {
		seed(workflow)
	}

	_, err := env.repository.Save(context.Background(), workflow, shell.NewCommandMetadata())
	require.NoError(t, err, "error saving the workflow")
}

func testResults() core.Results {
	return core.Results{
		Summary: "the question is answered",
		Findings: []core.Finding{
			{Title: "coverage", Content: "all sources agree", Confidence: 0.9},
		},
		Sources: []core.Source{
			{URL: "https://example.com/paper", Title: "A paper", RelevanceScore: 0.8},
		},
		ConfidenceScore:       0.85,
		CompletionTimeMinutes: 12,
	}
}

func Test_CompleteExecution_CommandHandler(t *testing.T) {
	// setup
	env := setupEnv(t)
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()
	taskID := uuid.New()

	givenRunningWorkflow(t, env, workflowID, fakeClock, func(workflow *core.Workflow) {
		require.NoError(t, workflow.CreateTask(taskID, "web_search", "researcher", fakeClock.Add(2*time.Second)))
		require.NoError(t, workflow.CompleteTask(taskID, json.RawMessage(`{}`), fakeClock.Add(3*time.Second)))
	})

	// act
	err := env.handler.Handle(ctx,
		completeexecution.BuildCommand(workflowID, testResults(), fakeClock.Add(4*time.Second)))

	// assert
	require.NoError(t, err, "handling the command should succeed")

	workflow, loadErr := env.repository.Load(ctx, core.WorkflowStreamID(workflowID))
	require.NoError(t, loadErr, "error loading the workflow")
	assert.Equal(t, core.WorkflowStatusCompleted, workflow.Status())

	results := workflow.Results()
	require.NotNil(t, results)
	assert.Equal(t, "the question is answered", results.Summary)
}

func Test_CompleteExecution_CommandHandler_When_TasksArePending(t *testing.T) {
	// setup
	env := setupEnv(t)
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()

	givenRunningWorkflow(t, env, workflowID, fakeClock, func(workflow *core.Workflow) {
		require.NoError(t, workflow.CreateTask(uuid.New(), "web_search", "researcher", fakeClock.Add(2*time.Second)))
	})

	// act
	err := env.handler.Handle(ctx,
		completeexecution.BuildCommand(workflowID, testResults(), fakeClock.Add(3*time.Second)))

	// assert
	assert.ErrorIs(t, err, aggregate.ErrCommandRejected)
}

func Test_CompleteExecution_CommandHandler_When_AlreadyCompleted(t *testing.T) {
	// setup
	env := setupEnv(t)
	ctx := context.Background()
	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()
	givenRunningWorkflow(t, env, workflowID, fakeClock, nil)

	command := completeexecution.BuildCommand(workflowID, testResults(), fakeClock.Add(2*time.Second))
	require.NoError(t, env.handler.Handle(ctx, command))

	// act: the same command again
	err := env.handler.Handle(ctx, command)

	// assert
	require.NoError(t, err, "re-sending the command must be idempotent")
}
