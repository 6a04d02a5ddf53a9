package workflowsbystatus

import (
	"context"
	"slices"
	"strings"

	"github.com/versioned-streams/eventstore-go/example/projections/workflowstatus"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
	"github.com/versioned-streams/eventstore-go/example/shared/shell"
)

// Views is the read-model surface this query needs,
// satisfied by the workflowstatus projection.
type Views interface {
	ViewsWithStatus(status core.WorkflowStatus) []workflowstatus.View
}

// QueryHandler handles the workflows-by-status query use case.
type QueryHandler struct {
	views Views
}

// NewQueryHandler creates a QueryHandler backed by the supplied read model.
func NewQueryHandler(views Views) (QueryHandler, error) {
	if views == nil {
		return QueryHandler{}, shell.ErrNilViewsSupplied
	}

	return QueryHandler{views: views}, nil
}

// Handle executes the query against the read model.
func (h QueryHandler) Handle(_ context.Context, query Query) (WorkflowsWithStatus, error) {
	views := h.views.ViewsWithStatus(query.Status)

	workflows := make([]WorkflowInfo, 0, len(views))
	for _, view := range views {
		workflows = append(workflows, WorkflowInfo{
			WorkflowID:     view.WorkflowID,
			Name:           view.Name,
			Status:         view.Status,
			TasksTotal:     view.TasksTotal,
			TasksCompleted: view.TasksCompleted,
			UpdatedAt:      view.UpdatedAt,
		})
	}

	slices.SortFunc(workflows, func(a, b WorkflowInfo) int {
		return strings.Compare(a.WorkflowID, b.WorkflowID)
	})

	return WorkflowsWithStatus{
		Status:    query.Status,
		Workflows: workflows,
		Count:     len(workflows),
	}, nil
}
