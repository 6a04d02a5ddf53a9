package completetask

import (
	"context"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
	"github.com/versioned-streams/eventstore-go/example/shared/shell"
)

// Repository is the narrow view of the workflow repository this handler
// needs, satisfied by aggregate.Repository[*core.Workflow].
type Repository interface {
	Load(ctx context.Context, streamID eventstore.StreamIDString) (*core.Workflow, error)
	Save(ctx context.Context, workflow *core.Workflow, metadata aggregate.Metadata) (eventstore.StreamVersionUint, error)
}

// CommandHandler executes the CompleteTask use case.
type CommandHandler struct {
	repository   Repository
	retryOptions []shell.RetryOption
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithRetryOptions sets a custom retry configuration for the handler.
func WithRetryOptions(opts ...shell.RetryOption) Option {
	return func(h *CommandHandler) {
		h.retryOptions = opts
	}
}

// NewCommandHandler creates a new CommandHandler.
func NewCommandHandler(repository Repository, opts ...Option) (CommandHandler, error) {
	if repository == nil {
		return CommandHandler{}, shell.ErrNilRepositorySupplied
	}

	handler := CommandHandler{repository: repository}
	for _, opt := range opts {
		opt(&handler)
	}

	return handler, nil
}

// Handle executes the command. Completing an already completed task is
// idempotent; an unknown task or a workflow that is not running returns a
// RejectedCommandError.
func (h CommandHandler) Handle(ctx context.Context, command Command) error {
	return shell.RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		return h.executeCommand(retryCtx, command)
	}, h.retryOptions...)
}

func (h CommandHandler) executeCommand(ctx context.Context, command Command) error {
	workflow, err := h.repository.Load(ctx, core.WorkflowStreamID(command.WorkflowID))
	if err != nil {
		return err
	}

	if decideErr := workflow.CompleteTask(command.TaskID, command.Result, command.OccurredAt); decideErr != nil {
		return decideErr
	}

	_, saveErr := h.repository.Save(ctx, workflow, shell.NewCommandMetadata())

	return saveErr
}
