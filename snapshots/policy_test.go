package snapshots_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/snapshots"
)

func Test_NewPolicy_With_Zero_Frequency(t *testing.T) {
	// act
	_, err := snapshots.NewPolicy(0)

	// assert
	assert.ErrorIs(t, err, snapshots.ErrZeroFrequencySupplied)
}

func Test_Policy_Due_When_A_Boundary_Is_Crossed(t *testing.T) {
	// setup
	policy, err := snapshots.NewPolicy(100)
	require.NoError(t, err)

	tests := []struct {
		name            string
		previousVersion uint
		newVersion      uint
		expected        bool
	}{
		{name: "landing exactly on the boundary", previousVersion: 99, newVersion: 100, expected: true},
		{name: "jumping over the boundary", previousVersion: 98, newVersion: 103, expected: true},
		{name: "staying inside one window", previousVersion: 100, newVersion: 150, expected: false},
		{name: "first window not reached yet", previousVersion: 0, newVersion: 99, expected: false},
		{name: "first boundary from scratch", previousVersion: 0, newVersion: 100, expected: true},
		{name: "no new events", previousVersion: 200, newVersion: 200, expected: false},
		{name: "crossing multiple boundaries at once", previousVersion: 50, newVersion: 350, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// act + assert
			assert.Equal(t, tt.expected, policy.Due(tt.previousVersion, tt.newVersion))
		})
	}
}

func Test_DefaultPolicy(t *testing.T) {
	// act
	policy := snapshots.DefaultPolicy()

	// assert
	assert.Equal(t, snapshots.DefaultSnapshotFrequency, policy.Frequency())
}
