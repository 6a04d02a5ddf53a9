package replay

import (
	"errors"
	"fmt"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Sentinel errors of the replay package, checkable with errors.Is.
var (
	// ErrNilStoreSupplied is returned when a nil store is supplied.
	ErrNilStoreSupplied = errors.New("nil store supplied")

	// ErrNilHandlerSupplied is returned when a nil handler is registered.
	ErrNilHandlerSupplied = errors.New("nil handler supplied")

	// ErrEmptyHandlerNameSupplied is returned when a handler reports an empty name.
	ErrEmptyHandlerNameSupplied = errors.New("empty handler name supplied")

	// ErrNoEventTypesSupplied is returned when a handler subscribes to no event types.
	ErrNoEventTypesSupplied = errors.New("handler subscribes to no event types")

	// ErrHandlerAlreadyRegistered is returned when two handlers share a name.
	ErrHandlerAlreadyRegistered = errors.New("handler with this name already registered")

	// ErrNoHandlersRegistered is returned when a replay is started without handlers.
	ErrNoHandlersRegistered = errors.New("no replay handlers registered")

	// ErrInvalidBatchSize is returned when a batch size of zero or below is supplied.
	ErrInvalidBatchSize = errors.New("invalid batch size supplied")

	// ErrInvalidConcurrency is returned when a stream concurrency of zero or below is supplied.
	ErrInvalidConcurrency = errors.New("invalid stream concurrency supplied")

	// ErrInvalidRetryPolicy is returned when a retry policy with no attempts
	// or negative delays is supplied.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy supplied")

	// ErrInvalidFailurePolicy is returned when an unknown failure policy is supplied.
	ErrInvalidFailurePolicy = errors.New("invalid failure policy supplied")

	// ErrNilLoggerSupplied is returned when a nil logger is supplied.
	ErrNilLoggerSupplied = errors.New("nil logger supplied")

	// ErrNilMetricsCollectorSupplied is returned when a nil metrics collector is supplied.
	ErrNilMetricsCollectorSupplied = errors.New("nil metrics collector supplied")

	// ErrUnknownRun is returned when no run with the given ID is known, neither
	// in process nor in the checkpoint store.
	ErrUnknownRun = errors.New("unknown replay run")

	// ErrRunNotActive is returned when pausing or canceling a run that is not running.
	ErrRunNotActive = errors.New("replay run is not active")

	// ErrRunAlreadyActive is returned when resuming a run that is still executing.
	ErrRunAlreadyActive = errors.New("replay run is already active")

	// ErrRunNotResumable is returned when resuming a run that finished for good.
	ErrRunNotResumable = errors.New("replay run is not resumable")

	// ErrRunStillActive is returned when forgetting a run that is still executing.
	ErrRunStillActive = errors.New("replay run is still active")

	// ErrHandlerFailed is returned when a handler exhausted its retries on one event.
	ErrHandlerFailed = errors.New("replay handler failed")
)

// HandlerFailureError reports a handler that exhausted its retries on one
// event. It unwraps to ErrHandlerFailed so callers can match it with
// errors.Is; the last handler error is kept in Err.
type HandlerFailureError struct {
	HandlerName   string
	EventType     string
	StreamID      eventstore.StreamIDString
	StreamVersion eventstore.StreamVersionUint
	Attempts      int
	Err           error
}

// Error implements the error interface.
func (e *HandlerFailureError) Error() string {
	return fmt.Sprintf("%s: handler %q on event %q of stream %s at version %d gave up after %d attempts: %v",
		ErrHandlerFailed.Error(), e.HandlerName, e.EventType, e.StreamID, e.StreamVersion, e.Attempts, e.Err)
}

// Unwrap makes the error compatible with errors.Is(err, ErrHandlerFailed).
func (e *HandlerFailureError) Unwrap() error {
	return ErrHandlerFailed
}

// BuildHandlerFailureError is a factory method for HandlerFailureError.
func BuildHandlerFailureError(
	handlerName string,
	event eventstore.StoredEvent,
	attempts int,
	err error,
) *HandlerFailureError {

	return &HandlerFailureError{
		HandlerName:   handlerName,
		EventType:     event.EventType,
		StreamID:      event.StreamID,
		StreamVersion: event.StreamVersion,
		Attempts:      attempts,
		Err:           err,
	}
}
