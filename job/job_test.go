package job

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marquev/sked/errors"
)

// stubStore records Save/Delete calls for boundary assertions.
type stubStore struct {
	mu      sync.Mutex
	saves   int
	deletes []string
	err     error
}

func (s *stubStore) Save(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	return nil
}

func (s *stubStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deletes = append(s.deletes, id)
	return nil
}

// stubScheduler is a minimal in-memory Scheduler boundary.
type stubScheduler struct {
	store    stubStore
	handlers map[string]HandlerFunc
	events   []Event
	deadline time.Duration
}

func newStubScheduler() *stubScheduler {
	return &stubScheduler{
		handlers: make(map[string]HandlerFunc),
		deadline: 10 * time.Minute,
	}
}

func (s *stubScheduler) JobStore() Store                 { return &s.store }
func (s *stubScheduler) Handler(name string) HandlerFunc { return s.handlers[name] }
func (s *stubScheduler) Emit(event Event, j *Job)        { s.events = append(s.events, event) }
func (s *stubScheduler) LockDeadline() time.Duration     { return s.deadline }

// fixedClock returns a clock pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewJobDefaults(t *testing.T) {
	s := newStubScheduler()
	j := New(s, "send-email", json.RawMessage(`{"to":"a@b.c"}`))

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, TypeNormal, j.Type)
	assert.Equal(t, PriorityNormal, j.Priority)
	assert.False(t, j.Disabled)
	assert.Nil(t, j.NextRunAt)
	assert.Nil(t, j.LockedAt)
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{"lowest", PriorityLowest},
		{"low", PriorityLow},
		{"normal", PriorityNormal},
		{"high", PriorityHigh},
		{"HIGHEST", PriorityHighest},
		{5, 5},
		{-20, -20},
		{float64(10), 10},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		require.NoError(t, err, "priority %v", tt.in)
		assert.Equal(t, tt.want, got)
	}

	// "high" must sort before "normal"
	high, _ := ParsePriority("high")
	normal, _ := ParsePriority("normal")
	assert.Greater(t, high, normal)
}

func TestSetPriorityInvalidLeavesPriorUnchanged(t *testing.T) {
	j := New(newStubScheduler(), "report", nil)
	require.NoError(t, j.SetPriority("high"))

	err := j.SetPriority("urgent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPriority))
	assert.Equal(t, PriorityHigh, j.Priority)

	err = j.SetPriority(1000)
	require.Error(t, err)
	assert.Equal(t, PriorityHigh, j.Priority)
}

func TestRehydrateKeepsSchedulerBindingAndClock(t *testing.T) {
	s := newStubScheduler()
	pinned := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	j := New(s, "sync", nil).WithClock(fixedClock(pinned))
	s.handlers["sync"] = func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	}

	// The stored row that won the unique race: different identity, no
	// live references of its own.
	winner := &Job{ID: "winner", Name: "sync", Priority: PriorityLow}
	j.Rehydrate(winner)

	assert.Equal(t, "winner", j.ID, "persisted attributes adopted")
	assert.Equal(t, PriorityLow, j.Priority)
	assert.Equal(t, pinned, j.clock(), "clock survives rehydration")

	// Still bound: persistence, emission, and handler lookup all work
	require.NoError(t, j.Save(context.Background()))
	assert.Equal(t, 1, s.store.saves)

	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, 1, j.FinishedCount)
	assert.Empty(t, j.FailReason)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	now := time.Now()
	j := New(newStubScheduler(), "report", json.RawMessage(`{"n":1}`))
	j.NextRunAt = &now
	j.UniqueKey = map[string]any{"name": "report"}
	j.Backoff = &Backoff{Type: BackoffFixed, Delay: time.Second}

	snap := j.Snapshot()

	// Snapshot must be a plain, marshalable projection
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"report"`)

	// Mutating the snapshot must not touch the live record
	*snap.NextRunAt = now.Add(time.Hour)
	snap.UniqueKey["name"] = "other"
	snap.Backoff.Delay = time.Minute
	snap.Data[0] = 'X'

	assert.Equal(t, now, *j.NextRunAt)
	assert.Equal(t, "report", j.UniqueKey["name"])
	assert.Equal(t, time.Second, j.Backoff.Delay)
	assert.Equal(t, byte('{'), j.Data[0])
}
