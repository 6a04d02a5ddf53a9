package completetask

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

const commandType = core.CommandCompleteTask

// Command represents the intent to record the result of one task.
type Command struct {
	WorkflowID uuid.UUID
	TaskID     uuid.UUID
	Result     json.RawMessage
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
	result json.RawMessage,
	occurredAt time.Time,
) Command {

	return Command{
		WorkflowID: workflowID,
		TaskID:     taskID,
		Result:     result,
		OccurredAt: occurredAt,
	}
}
