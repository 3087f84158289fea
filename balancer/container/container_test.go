package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMovable(t *testing.T) {
	assert.True(t, StateClosed.Movable())
	assert.True(t, StateQuasiClosed.Movable())
	assert.False(t, StateOpen.Movable())
	assert.False(t, StateClosing.Movable())
	assert.False(t, StateDeleting.Movable())
	assert.False(t, StateDeleted.Movable())
}

func TestContainerIdLess(t *testing.T) {
	assert.True(t, NewContainerId("a").Less(NewContainerId("b")))
	assert.False(t, NewContainerId("b").Less(NewContainerId("a")))
}

func TestMoveOutcomeString(t *testing.T) {
	assert.Equal(t, "Completed", OutcomeCompleted.String())
	assert.Equal(t, "TimedOut", OutcomeTimedOut.String())
	assert.Equal(t, "Unknown", MoveOutcome(99).String())
}
