package startexecution

import (
	"time"

	"github.com/google/uuid"

	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

const commandType = core.CommandStartExecution

// Command represents the intent to start executing a created workflow.
type Command struct {
	WorkflowID uuid.UUID
	OccurredAt time.Time
}

// CommandType returns the type identifier for this command, used for
// observability and retry labeling.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(workflowID uuid.UUID, occurredAt time.Time) Command {
	return Command{
		WorkflowID: workflowID,
		OccurredAt: occurredAt,
	}
}
