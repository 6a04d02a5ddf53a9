// Package createworkflow implements the Create Workflow command use case.
//
// Handling the command starts a new event stream for the workflow. Re-sending
// the command for an existing workflow is a no-op, invalid input is rejected
// without touching the stream.
package createworkflow
