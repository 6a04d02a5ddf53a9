// Package completeexecution implements the Complete Execution command use
// case. A workflow can only complete once all of its tasks are done; the
// command carries the final research results.
package completeexecution
