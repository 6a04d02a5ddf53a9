package aggregate_test

import (
	"encoding/json"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/versioned-streams/eventstore-go/aggregate"
	"github.com/versioned-streams/eventstore-go/codec"
	"github.com/versioned-streams/eventstore-go/eventstore"
)

const taskAddedEventType = "test.task_added"

type taskAdded struct {
	Title      string    `json:"title"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e taskAdded) EventType() string        { return taskAddedEventType }
func (e taskAdded) SchemaVersion() uint      { return 1 }
func (e taskAdded) HasOccurredAt() time.Time { return e.OccurredAt }

// taskCompletedStub is an event type the taskList fixture does not handle.
type taskCompletedStub struct{}

func (e taskCompletedStub) EventType() string        { return "test.task_completed" }
func (e taskCompletedStub) SchemaVersion() uint      { return 1 }
func (e taskCompletedStub) HasOccurredAt() time.Time { return time.Unix(0, 0).UTC() }

// taskList is a minimal aggregate fixture: an append-only list of task titles.
type taskList struct {
	*aggregate.Base

	Titles []string
}

type taskListState struct {
	Titles []string `json:"titles"`
}

func newTaskList(streamID eventstore.StreamIDString) *taskList {
	return &taskList{Base: aggregate.NewBase(streamID)}
}

func (l *taskList) AddTask(title string) error {
	if title == "" {
		return aggregate.BuildRejectedCommandError("AddTask", "title must not be empty")
	}

	return aggregate.RecordThat(l, taskAdded{Title: title, OccurredAt: time.Unix(0, 0).UTC()})
}

func (l *taskList) Apply(event codec.DomainEvent) error {
	switch actualEvent := event.(type) {
	case taskAdded:
		l.Titles = append(l.Titles, actualEvent.Title)
	default:
		return fmt.Errorf("unexpected event type %q", event.EventType())
	}

	return nil
}

func (l *taskList) MarshalState() (json.RawMessage, error) {
	return jsoniter.ConfigFastest.Marshal(taskListState{Titles: l.Titles})
}

func (l *taskList) UnmarshalState(state json.RawMessage) error {
	restored := taskListState{}
	if err := jsoniter.ConfigFastest.Unmarshal(state, &restored); err != nil {
		return err
	}

	l.Titles = restored.Titles

	return nil
}

func newTaskListRegistry() (*codec.Registry, error) {
	registry := codec.NewRegistry()

	err := registry.RegisterDecoder(taskAddedEventType, 1, func(payloadJSON []byte) (codec.DomainEvent, error) {
		event := taskAdded{}
		if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &event); unmarshalErr != nil {
			return nil, unmarshalErr
		}

		return event, nil
	})
	if err != nil {
		return nil, err
	}

	return registry, nil
}
