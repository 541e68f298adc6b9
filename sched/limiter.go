package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marquev/sked/errors"
)

// Limiter enforces max dispatches per time window using a sliding
// window algorithm.
type Limiter struct {
	maxPerMinute int
	window       time.Duration
	mu           sync.Mutex
	dispatchAt   []time.Time
	timeNow      func() time.Time // Injectable for testing
}

// NewLimiter creates a rate limiter with real time. A non-positive
// limit disables limiting.
func NewLimiter(maxPerMinute int) *Limiter {
	return NewLimiterWithClock(maxPerMinute, time.Now)
}

// NewLimiterWithClock creates a rate limiter with injectable clock (for testing)
func NewLimiterWithClock(maxPerMinute int, timeNow func() time.Time) *Limiter {
	return &Limiter{
		maxPerMinute: maxPerMinute,
		window:       60 * time.Second,
		dispatchAt:   make([]time.Time, 0, max(maxPerMinute, 0)),
		timeNow:      timeNow,
	}
}

// Allow checks if a dispatch is allowed under the rate limit.
// Returns an error when the limit is exceeded.
func (l *Limiter) Allow() error {
	if l.maxPerMinute <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	l.removeExpired(now)

	if len(l.dispatchAt) >= l.maxPerMinute {
		err := errors.Newf("dispatch rate limit exceeded: %d per minute (limit: %d)",
			len(l.dispatchAt), l.maxPerMinute)
		err = errors.WithDetail(err, fmt.Sprintf("Dispatches in window: %d", len(l.dispatchAt)))
		err = errors.WithDetail(err, fmt.Sprintf("Max per minute: %d", l.maxPerMinute))
		return err
	}

	l.dispatchAt = append(l.dispatchAt, now)
	return nil
}

// Wait blocks until a dispatch is allowed under the rate limit.
// Returns an error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if err := l.Allow(); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			// Retry after short delay
		}
	}
}

// removeExpired drops dispatch timestamps outside the sliding window.
// Must be called with lock held.
func (l *Limiter) removeExpired(now time.Time) {
	cutoff := now.Add(-l.window)

	// Timestamps are ordered, so count expired from the front
	expired := 0
	for _, at := range l.dispatchAt {
		if !at.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	l.dispatchAt = l.dispatchAt[expired:]
}

// Reset clears the limiter state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dispatchAt = l.dispatchAt[:0]
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() (inWindow int, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.removeExpired(l.timeNow())

	inWindow = len(l.dispatchAt)
	remaining = l.maxPerMinute - inWindow
	if remaining < 0 {
		remaining = 0
	}
	return inWindow, remaining
}
