package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marquev/sked/job"
)

func TestEmitterFansOutToAllSubscribers(t *testing.T) {
	e := NewEmitter()
	a := e.Subscribe()
	b := e.Subscribe()

	e.Emit(Transition{Event: job.EventStart, JobID: "j1", Name: "tick", At: time.Now()})

	for _, ch := range []chan Transition{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, job.EventStart, got.Event)
			assert.Equal(t, "j1", got.JobID)
		default:
			t.Fatal("expected a buffered transition")
		}
	}
}

func TestEmitterDropsWhenSubscriberFull(t *testing.T) {
	e := NewEmitter()
	ch := e.Subscribe()

	// Overfill the buffer; the extra transitions must be dropped
	// without blocking the emitter.
	for i := 0; i < subscriberChannelBufferSize+10; i++ {
		e.Emit(Transition{Event: job.EventSave, JobID: "j1"})
	}

	assert.Len(t, ch, subscriberChannelBufferSize)
}

func TestEmitterUnsubscribe(t *testing.T) {
	e := NewEmitter()
	ch := e.Subscribe()
	e.Unsubscribe(ch)

	e.Emit(Transition{Event: job.EventRemove, JobID: "j1"})

	require.Empty(t, ch, "unsubscribed channels receive nothing")
}
