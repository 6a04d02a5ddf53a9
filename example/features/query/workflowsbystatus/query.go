package workflowsbystatus

import (
	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

const (
	queryType = "WorkflowsByStatus"
)

// Query represents the intent to list all workflows in one lifecycle status.
type Query struct {
	Status core.WorkflowStatus
}

// BuildQuery creates a new Query with the provided status.
func BuildQuery(status core.WorkflowStatus) Query {
	return Query{
		Status: status,
	}
}

// QueryType returns the query type.
func (q Query) QueryType() string {
	return queryType
}
