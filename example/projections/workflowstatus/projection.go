package workflowstatus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/versioned-streams/eventstore-go/codec"
	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/example/shared/core"
)

const handlerName = "workflow-status"

// ErrNilRegistrySupplied occurs when a nil codec registry is supplied to NewProjection.
var ErrNilRegistrySupplied = errors.New("registry must not be nil")

// View is the read-model row kept per workflow.
type View struct {
	WorkflowID     core.WorkflowIDString
	Name           string
	Status         core.WorkflowStatus
	TasksTotal     int
	TasksCompleted int
	UpdatedAt      time.Time
}

type viewRecord struct {
	view        View
	lastVersion eventstore.StreamVersionUint
}

// Projection builds workflow status views from replayed events.
type Projection struct {
	registry *codec.Registry

	mu    sync.RWMutex
	views map[eventstore.StreamIDString]*viewRecord
}

// NewProjection creates a Projection that decodes payloads with the supplied registry.
func NewProjection(registry *codec.Registry) (*Projection, error) {
	if registry == nil {
		return nil, ErrNilRegistrySupplied
	}

	return &Projection{
		registry: registry,
		views:    make(map[eventstore.StreamIDString]*viewRecord),
	}, nil
}

// Name implements replay.Handler.
func (p *Projection) Name() string {
	return handlerName
}

// EventTypes implements replay.Handler.
func (p *Projection) EventTypes() []string {
	return []string{
		core.WorkflowCreatedEventType,
		core.ExecutionStartedEventType,
		core.TaskCreatedEventType,
		core.TaskCompletedEventType,
		core.ExecutionCompletedEventType,
		core.ExecutionFailedEventType,
		core.WorkflowCancelledEventType,
	}
}

// Handle implements replay.Handler.
//
// Events of one stream arrive in version order, so dropping everything at or
// below the row's last applied version makes redelivery a no-op.
func (p *Projection) Handle(_ context.Context, stored eventstore.StoredEvent) error {
	event, err := p.registry.Deserialize(stored.EventType, stored.SchemaVersion, stored.PayloadJSON)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	record, exists := p.views[stored.StreamID]
	if !exists {
		record = &viewRecord{}
		p.views[stored.StreamID] = record
	}

	if stored.StreamVersion <= record.lastVersion {
		return nil
	}

	switch e := event.(type) {
	case core.WorkflowCreated:
		record.view.WorkflowID = e.WorkflowID
		record.view.Name = e.Name
		record.view.Status = core.WorkflowStatusCreated

	case core.ExecutionStarted:
		record.view.Status = core.WorkflowStatusRunning

	case core.TaskCreated:
		record.view.TasksTotal++

	case core.TaskCompleted:
		record.view.TasksCompleted++

	case core.ExecutionCompleted:
		record.view.Status = core.WorkflowStatusCompleted

	case core.ExecutionFailed:
		record.view.Status = core.WorkflowStatusFailed

	case core.WorkflowCancelled:
		record.view.Status = core.WorkflowStatusCancelled
	}

	record.view.UpdatedAt = stored.OccurredAt
	record.lastVersion = stored.StreamVersion

	return nil
}

// ViewFor returns the current view for one workflow stream, if it exists.
func (p *Projection) ViewFor(streamID eventstore.StreamIDString) (View, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	record, exists := p.views[streamID]
	if !exists {
		return View{}, false
	}

	return record.view, true
}

// ViewsWithStatus returns a copy of all views currently in the given status.
func (p *Projection) ViewsWithStatus(status core.WorkflowStatus) []View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	views := make([]View, 0)
	for _, record := range p.views {
		if record.view.Status == status {
			views = append(views, record.view)
		}
	}

	return views
}
