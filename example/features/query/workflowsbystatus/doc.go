// Package workflowsbystatus implements the Workflows By Status query use case.
//
// The query is served from the workflow status read model, not from the event
// streams. It returns one row per workflow currently in the requested status,
// sorted by workflow id so repeated queries over the same state give the same
// order.
package workflowsbystatus
