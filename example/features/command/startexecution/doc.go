// Package startexecution implements the Start Execution command use case,
// moving a created workflow into the running state.
package startexecution
