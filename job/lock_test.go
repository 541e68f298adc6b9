package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRunning(t *testing.T) {
	now := time.Now()
	j := New(newStubScheduler(), "tick", nil)

	assert.False(t, j.IsRunning(), "fresh job is not running")

	// Claimed and started
	j.LockedAt = &now
	j.LastRunAt = &now
	assert.True(t, j.IsRunning())

	// Finished after the last start
	finished := now.Add(time.Second)
	j.LastFinishedAt = &finished
	assert.False(t, j.IsRunning())

	// Started again after the previous finish
	restarted := finished.Add(time.Minute)
	j.LastRunAt = &restarted
	j.LockedAt = &restarted
	assert.True(t, j.IsRunning())
}

func TestIsExpired(t *testing.T) {
	const deadline = 600000 * time.Millisecond // 10 minutes
	now := time.Now()
	j := New(newStubScheduler(), "tick", nil).WithClock(fixedClock(now))

	assert.False(t, j.IsExpired(deadline), "unlocked job never expires")

	fresh := now.Add(-5 * time.Minute)
	j.LockedAt = &fresh
	assert.False(t, j.IsExpired(deadline))

	stale := now.Add(-11 * time.Minute)
	j.LockedAt = &stale
	assert.True(t, j.IsExpired(deadline))

	// Boundary: exactly at the deadline is not yet expired
	exact := now.Add(-deadline)
	j.LockedAt = &exact
	assert.False(t, j.IsExpired(deadline))
}

func TestTouchRefreshesLock(t *testing.T) {
	start := time.Now()
	j := New(newStubScheduler(), "tick", nil).WithClock(fixedClock(start.Add(time.Minute)))

	// No-op when not locked
	j.Touch()
	assert.Nil(t, j.LockedAt)

	j.LockedAt = &start
	j.Touch()
	assert.Equal(t, start.Add(time.Minute), *j.LockedAt)

	// Monotonic: a clock behind the current lock never rewinds it
	j.WithClock(fixedClock(start.Add(-time.Hour)))
	j.Touch()
	assert.Equal(t, start.Add(time.Minute), *j.LockedAt)
}
