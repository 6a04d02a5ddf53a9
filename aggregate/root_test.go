package aggregate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/aggregate"
)

func Test_RecordThat_Applies_Events_And_Tracks_Them_As_Uncommitted(t *testing.T) {
	// setup
	list := newTaskList("tasklist-1")

	// act
	err := list.AddTask("collect sources")
	require.NoError(t, err)
	err = list.AddTask("summarize findings")
	require.NoError(t, err)

	// assert: state is mutated immediately, version only moves on save
	assert.Equal(t, []string{"collect sources", "summarize findings"}, list.Titles)
	assert.Equal(t, uint(0), list.Version())
	assert.True(t, list.HasUncommittedEvents())
	assert.Len(t, list.UncommittedEvents(), 2)
}

func Test_RecordThat_When_Apply_Rejects_The_Event(t *testing.T) {
	// setup
	list := newTaskList("tasklist-1")

	// act: an event type the aggregate does not know
	err := aggregate.RecordThat(list, taskCompletedStub{})

	// assert: nothing is tracked
	assert.ErrorIs(t, err, aggregate.ErrApplyEventFailed)
	assert.False(t, list.HasUncommittedEvents())
}

func Test_UncommittedEvents_Returns_A_Detached_Slice(t *testing.T) {
	// setup
	list := newTaskList("tasklist-1")
	require.NoError(t, list.AddTask("collect sources"))

	// act
	events := list.UncommittedEvents()
	events[0] = nil

	// assert
	require.Len(t, list.UncommittedEvents(), 1)
	assert.NotNil(t, list.UncommittedEvents()[0])
}

func Test_RejectedCommandError_Carries_Command_And_Reason(t *testing.T) {
	// setup
	list := newTaskList("tasklist-1")

	// act
	err := list.AddTask("")

	// assert
	assert.ErrorIs(t, err, aggregate.ErrCommandRejected)

	var rejected *aggregate.RejectedCommandError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "AddTask", rejected.Command)
	assert.Equal(t, "title must not be empty", rejected.Reason)
	assert.ErrorContains(t, err, "title must not be empty")
}
