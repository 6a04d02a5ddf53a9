package workflowsbystatus

import (
	"time"

	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

// WorkflowInfo represents one workflow in the query result.
type WorkflowInfo struct {
	WorkflowID     core.WorkflowIDString
	Name           string
	Status         core.WorkflowStatus
	TasksTotal     int
	TasksCompleted int
	UpdatedAt      time.Time
}

// WorkflowsWithStatus represents the query result containing all workflows
// currently in the requested status.
type WorkflowsWithStatus struct {
	Status    core.WorkflowStatus
	Workflows []WorkflowInfo
	Count     int
}
