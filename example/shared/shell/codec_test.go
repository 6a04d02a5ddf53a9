package shell_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/codec"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
	"github.com/versioned-streams/eventstore-go/example/shared/shell"
)

func Test_WorkflowRegistry_RoundTripsEveryEventType(t *testing.T) {
	// setup
	registry, err := shell.NewWorkflowRegistry()
	require.NoError(t, err, "building the registry should succeed")

	fakeClock := time.Unix(0, 0).UTC()
	workflowID := uuid.New()
	taskID := uuid.New()

	events := []codec.DomainEvent{
		core.BuildWorkflowCreated(workflowID, "study", "query", core.Methodology{Name: "deep research"}, fakeClock),
		core.BuildExecutionStarted(workflowID, fakeClock),
		core.BuildTaskCreated(workflowID, taskID, "web_search", "researcher", fakeClock),
		core.BuildTaskCompleted(workflowID, taskID, []byte(`{"hits":5}`), fakeClock),
		core.BuildExecutionCompleted(workflowID, core.Results{Summary: "done"}, fakeClock),
		core.BuildExecutionFailed(workflowID, "provider down", fakeClock),
		core.BuildWorkflowCancelled(workflowID, "obsolete", fakeClock),
	}

	for _, event := range events {
		// act
		payloadJSON, serializeErr := registry.Serialize(event)
		require.NoError(t, serializeErr, "serializing %s should succeed", event.EventType())

		decoded, deserializeErr := registry.Deserialize(event.EventType(), event.SchemaVersion(), payloadJSON)

		// assert
		require.NoError(t, deserializeErr, "deserializing %s should succeed", event.EventType())
		assert.Equal(t, event, decoded)
	}
}

func Test_WorkflowRegistry_UpcastsWorkflowCreatedV1(t *testing.T) {
	// setup
	registry, err := shell.NewWorkflowRegistry()
	require.NoError(t, err, "building the registry should succeed")

	workflowID := uuid.New()
	fakeClock := time.Unix(0, 0).UTC()

	v1Payload, marshalErr := jsoniter.ConfigFastest.Marshal(map[string]any{
		"workflow_id": workflowID.String(),
		"name":        "legacy study",
		"query":       "legacy query",
		"methodology": "deep research",
		"occurred_at": fakeClock,
	})
	require.NoError(t, marshalErr)

	// act
	decoded, deserializeErr := registry.Deserialize(core.WorkflowCreatedEventType, 1, v1Payload)

	// assert
	require.NoError(t, deserializeErr, "the v1 payload should upcast and decode")

	created, ok := decoded.(core.WorkflowCreated)
	require.True(t, ok, "the decoded event should be a WorkflowCreated")
	assert.Equal(t, "legacy study", created.Name)
	assert.Equal(t, "deep research", created.Methodology.Name,
		"the v1 methodology name must end up in the structured methodology")
	assert.Empty(t, created.Methodology.Steps)
}

func Test_WorkflowRegistry_When_SchemaVersionIsUnknown(t *testing.T) {
	registry, err := shell.NewWorkflowRegistry()
	require.NoError(t, err)

	_, deserializeErr := registry.Deserialize(core.WorkflowCreatedEventType, 7, []byte(`{}`))

	assert.ErrorIs(t, deserializeErr, codec.ErrSchemaUnknown)

	var schemaErr *codec.SchemaUnknownError
	require.ErrorAs(t, deserializeErr, &schemaErr)
	assert.Equal(t, uint(7), schemaErr.SchemaVersion, "the error must carry the stored version")
}
