package sched

import (
	"sync"
	"time"

	"github.com/marquev/sked/job"
)

// subscriberChannelBufferSize is the buffer size for subscriber channels.
const subscriberChannelBufferSize = 100

// Transition is the fan-out payload describing a job state change.
type Transition struct {
	Event job.Event `json:"event"`
	JobID string    `json:"job_id"`
	Name  string    `json:"name"`
	At    time.Time `json:"at"`
}

// Emitter fans job state transitions out to subscribers. Delivery is
// best-effort: a subscriber with a full channel misses the transition
// rather than stalling the worker that produced it.
type Emitter struct {
	mu          sync.RWMutex
	subscribers []chan Transition
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		subscribers: make([]chan Transition, 0),
	}
}

// Subscribe returns a buffered channel receiving future transitions.
func (e *Emitter) Subscribe() chan Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Transition, subscriberChannelBufferSize)
	e.subscribers = append(e.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel. The channel is NOT closed
// by this method - callers should close it themselves after
// unsubscribing if needed. This prevents double-close panics.
func (e *Emitter) Unsubscribe(ch chan Transition) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subscribers {
		if sub == ch {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			return
		}
	}
}

// Emit sends a transition to all subscribers. Non-blocking: a full
// subscriber channel is skipped.
func (e *Emitter) Emit(t Transition) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.subscribers {
		select {
		case ch <- t:
		default:
			// Channel full, skip
		}
	}
}
