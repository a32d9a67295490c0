package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViolationError_Error(t *testing.T) {
	err := New(ErrCodeAlreadyDropped, "driver.queue", "objection dropped twice")
	assert.Equal(t, "ALREADY_DROPPED: objection dropped twice (driver.queue)", err.Error())

	bare := New(ErrCodeTerminated, "", "test already finished")
	assert.Equal(t, "TERMINATED: test already finished", bare.Error())
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("enqueue: %w", New(ErrCodeNotRunning, "tb.drv", "component has not entered run phase"))

	assert.True(t, Is(err, ErrCodeNotRunning))
	assert.False(t, Is(err, ErrCodeAlreadyDropped))
	assert.True(t, IsViolation(err))
	assert.False(t, IsViolation(fmt.Errorf("plain")))
}
