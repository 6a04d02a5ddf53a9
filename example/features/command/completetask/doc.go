// Package completetask implements the Complete Task command use case,
// recording the result of one task of a running workflow.
package completetask
