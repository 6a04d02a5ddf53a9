package createworkflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

const commandType = core.CommandCreateWorkflow

// Command represents the intent to bring a new research workflow into
// existence.
type Command struct {
	WorkflowID  uuid.UUID
	Name        string
	Query       string
	Methodology core.Methodology
	OccurredAt  time.Time
}

// CommandType returns the type identifier for this command, used for
// observability and retry labeling.
func (c Command) CommandType() string {
	return commandType
}

// BuildCommand creates a new Command with the provided parameters.
func BuildCommand(
	workflowID uuid.UUID,
	name string,
	query string,
	methodology core.Methodology,
	occurredAt time.Time,
) Command {

	return Command{
		WorkflowID:  workflowID,
		Name:        name,
		Query:       query,
		Methodology: methodology,
		OccurredAt:  occurredAt,
	}
}
