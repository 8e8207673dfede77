package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThrottleLocksOutAfterRepeatedFailures(t *testing.T) {
	th := NewThrottle()
	th.lockoutAfter = 3
	th.burst = 100 // keep rate limiting out of this test's way

	for i := 0; i < 2; i++ {
		th.RecordFailure("alice")
		_, blocked := th.Check("alice")
		assert.False(t, blocked, "should not be locked out before threshold")
	}

	th.RecordFailure("alice")
	_, blocked := th.Check("alice")
	assert.True(t, blocked, "should be locked out at threshold")
}

func TestThrottleSuccessClearsFailures(t *testing.T) {
	th := NewThrottle()
	th.lockoutAfter = 2
	th.burst = 100

	th.RecordFailure("bob")
	th.RecordSuccess("bob")
	th.RecordFailure("bob")

	_, blocked := th.Check("bob")
	assert.False(t, blocked, "success should reset the failure count")
}
