package aggregate

import (
	"errors"
	"fmt"
)

// Sentinel errors of the aggregate package, checkable with errors.Is.
var (
	// ErrCommandRejected is returned when an aggregate refuses a command for
	// business reasons. Rejections are domain outcomes, not storage failures,
	// and must never be retried.
	ErrCommandRejected = errors.New("command rejected")

	// ErrNilEventStoreSupplied is returned when a nil event store is supplied.
	ErrNilEventStoreSupplied = errors.New("nil event store supplied")

	// ErrNilRegistrySupplied is returned when a nil codec registry is supplied.
	ErrNilRegistrySupplied = errors.New("nil codec registry supplied")

	// ErrNilRootFactorySupplied is returned when a nil aggregate factory is supplied.
	ErrNilRootFactorySupplied = errors.New("nil aggregate factory supplied")

	// ErrNilSnapshotStoreSupplied is returned when a nil snapshot store is supplied.
	ErrNilSnapshotStoreSupplied = errors.New("nil snapshot store supplied")

	// ErrNilLoggerSupplied is returned when a nil logger is supplied.
	ErrNilLoggerSupplied = errors.New("nil logger supplied")

	// ErrApplyEventFailed is returned when an aggregate's Apply rejects an
	// event during replay or recording.
	ErrApplyEventFailed = errors.New("applying event to aggregate failed")
)

// RejectedCommandError reports which command an aggregate refused and why.
// It unwraps to ErrCommandRejected so callers can match the whole family
// with errors.Is, or use errors.As to read the reason.
type RejectedCommandError struct {
	Command string
	Reason  string
}

// Error implements the error interface.
func (e *RejectedCommandError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCommandRejected.Error(), e.Command, e.Reason)
}

// Unwrap makes the error compatible with errors.Is(err, ErrCommandRejected).
func (e *RejectedCommandError) Unwrap() error {
	return ErrCommandRejected
}

// BuildRejectedCommandError is a factory method for RejectedCommandError.
func BuildRejectedCommandError(command string, reason string) *RejectedCommandError {
	return &RejectedCommandError{
		Command: command,
		Reason:  reason,
	}
}
