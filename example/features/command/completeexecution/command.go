package completeexecution

import (
	"time"

	"github.com/google/uuid"

	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

const commandType = core.CommandCompleteExecution

// Command represents the intent to finish a workflow with its results.
type Command struct {
	WorkflowID uuid.UUID
	Results    core.Results
	OccurredAt time.Time
}

// CommandType returns the type identifier for this command, used for
// observability and retry labeling.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(workflowID uuid.UUID, results core.Results, occurredAt time.Time) Command {
	return Command{
		WorkflowID: workflowID,
		Results:    results,
		OccurredAt: occurredAt,
	}
}
