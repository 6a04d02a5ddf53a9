package shell

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/versioned-streams/eventstore-go/codec"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

// workflowCreatedV1 is the retired payload shape of research.workflow.created:
// the methodology was a plain name string before it became structured.
type workflowCreatedV1 struct {
	WorkflowID  core.WorkflowIDString `json:"workflow_id"`
	Name        string                `json:"name"`
	Query       string                `json:"query"`
	Methodology string                `json:"methodology"`
	OccurredAt  time.Time             `json:"occurred_at"`
}

// NewWorkflowRegistry creates a codec registry with decoders for every
// workflow event type at its current schema version, plus the upcaster that
// migrates research.workflow.created payloads from version 1 to version 2.
func NewWorkflowRegistry() (*codec.Registry, error) {
	registry := codec.NewRegistry()

	decoders := []struct {
		eventType     string
		schemaVersion uint
		decode        codec.DecodeFunc
	}{
		{core.WorkflowCreatedEventType, core.WorkflowCreatedSchemaVersion, decodeAs[core.WorkflowCreated]},
		{core.ExecutionStartedEventType, core.ExecutionStartedSchemaVersion, decodeAs[core.ExecutionStarted]},
		{core.TaskCreatedEventType, core.TaskCreatedSchemaVersion, decodeAs[core.TaskCreated]},
		{core.TaskCompletedEventType, core.TaskCompletedSchemaVersion, decodeAs[core.TaskCompleted]},
		{core.ExecutionCompletedEventType, core.ExecutionCompletedSchemaVersion, decodeAs[core.ExecutionCompleted]},
		{core.ExecutionFailedEventType, core.ExecutionFailedSchemaVersion, decodeAs[core.ExecutionFailed]},
		{core.WorkflowCancelledEventType, core.WorkflowCancelledSchemaVersion, decodeAs[core.WorkflowCancelled]},
	}

	for _, d := range decoders {
		if err := registry.RegisterDecoder(d.eventType, d.schemaVersion, d.decode); err != nil {
			return nil, err
		}
	}

	if err := registry.RegisterUpcaster(core.WorkflowCreatedEventType, 1, upcastWorkflowCreatedV1); err != nil {
		return nil, err
	}

	return registry, nil
}

// decodeAs unmarshals a payload into the concrete event type E.
func decodeAs[E codec.DomainEvent](payloadJSON []byte) (codec.DomainEvent, error) {
	var event E
	if err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &event); err != nil {
		return nil, err
	}

	return event, nil
}

// upcastWorkflowCreatedV1 wraps the v1 methodology name into the structured
// v2 methodology object. The unknown v2 fields stay at their zero values.
func upcastWorkflowCreatedV1(payloadJSON []byte) ([]byte, error) {
	var v1 workflowCreatedV1
	if err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &v1); err != nil {
		return nil, err
	}

	v2 := core.WorkflowCreated{
		WorkflowID: v1.WorkflowID,
		Name:       v1.Name,
		Query:      v1.Query,
		Methodology: core.Methodology{
			Name: v1.Methodology,
		},
		OccurredAt: v1.OccurredAt,
	}

	return jsoniter.ConfigFastest.Marshal(v2)
}
