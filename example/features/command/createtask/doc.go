// Package createtask implements the Create Task command use case, adding a
// pending task to a running workflow. Creating a task that already exists is
// a no-op.
package createtask
