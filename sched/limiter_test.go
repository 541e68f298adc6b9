package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsUpToLimit(t *testing.T) {
	now := time.Now()
	l := NewLimiterWithClock(3, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(), "dispatch %d", i+1)
	}
	require.Error(t, l.Allow(), "fourth dispatch exceeds the limit")

	inWindow, remaining := l.Stats()
	assert.Equal(t, 3, inWindow)
	assert.Equal(t, 0, remaining)
}

func TestLimiterSlidingWindowExpiry(t *testing.T) {
	now := time.Now()
	l := NewLimiterWithClock(2, func() time.Time { return now })

	require.NoError(t, l.Allow())
	require.NoError(t, l.Allow())
	require.Error(t, l.Allow())

	// Advance past the window; capacity returns
	now = now.Add(61 * time.Second)
	require.NoError(t, l.Allow())
}

func TestLimiterZeroDisablesLimiting(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Allow())
	}
}

func TestLimiterReset(t *testing.T) {
	now := time.Now()
	l := NewLimiterWithClock(1, func() time.Time { return now })

	require.NoError(t, l.Allow())
	require.Error(t, l.Allow())

	l.Reset()
	require.NoError(t, l.Allow())
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	now := time.Now()
	l := NewLimiterWithClock(1, func() time.Time { return now })
	require.NoError(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
