package createtask

import (
	"time"

	"github.com/google/uuid"

	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

const commandType = core.CommandCreateTask

// Command represents the intent to add a task to a running workflow.
type Command struct {
	WorkflowID uuid.UUID
	TaskID     uuid.UUID
	TaskType   string
	AgentType  string
	OccurredAt time.Time
}

// CommandType returns the type identifier for this command, used for
// observability and retry labeling.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(
	workflowID uuid.UUID,
	taskID uuid.UUID,
	taskType string,
	agentType string,
	occurredAt time.Time,
) Command {

	return Command{
		WorkflowID: workflowID,
		TaskID:     taskID,
		TaskType:   taskType,
		AgentType:  agentType,
		OccurredAt: occurredAt,
	}
}
