package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marquev/sked/errors"
)

func TestEnableDisable(t *testing.T) {
	j := New(newStubScheduler(), "tick", nil)

	j.Disable()
	assert.True(t, j.Disabled)

	j.Enable()
	assert.False(t, j.Disabled)
}

func TestRepeatEveryChainsAndSetsOptions(t *testing.T) {
	j := New(newStubScheduler(), "tick", nil)

	got := j.RepeatEvery("5 minutes", &RepeatOptions{
		Timezone: "Europe/Berlin",
		SkipDays: []time.Weekday{time.Sunday},
	})

	assert.Same(t, j, got, "returns the record for chaining")
	assert.Equal(t, "5 minutes", j.RepeatInterval)
	assert.Equal(t, "Europe/Berlin", j.RepeatTimezone)
	assert.Equal(t, []time.Weekday{time.Sunday}, j.SkipDays)
	assert.Nil(t, j.NextRunAt, "RepeatEvery does not compute the schedule")
}

func TestScheduleRelative(t *testing.T) {
	now := time.Now()
	j := New(newStubScheduler(), "tick", nil).WithClock(fixedClock(now))

	require.NoError(t, j.Schedule("in 5 minutes"))
	require.NotNil(t, j.NextRunAt)
	assert.Equal(t, now.Add(5*time.Minute), *j.NextRunAt)

	require.NoError(t, j.Schedule("20 seconds"))
	assert.Equal(t, now.Add(20*time.Second), *j.NextRunAt)

	require.NoError(t, j.Schedule("now"))
	assert.Equal(t, now, *j.NextRunAt)
}

func TestScheduleAbsolute(t *testing.T) {
	j := New(newStubScheduler(), "tick", nil)

	require.NoError(t, j.Schedule("2026-03-01T09:30:00Z"))
	require.NotNil(t, j.NextRunAt)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), j.NextRunAt.UTC())
}

func TestScheduleAbsoluteWithoutZoneIsLocalWallClock(t *testing.T) {
	j := New(newStubScheduler(), "tick", nil)

	require.NoError(t, j.Schedule("2026-03-01 09:30"))
	require.NotNil(t, j.NextRunAt)

	want := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	assert.True(t, j.NextRunAt.Equal(want), "zone-less times are local, not UTC")
}

func TestScheduleInvalidExpression(t *testing.T) {
	j := New(newStubScheduler(), "tick", nil)
	prior := time.Now().Add(time.Hour)
	j.NextRunAt = &prior

	err := j.Schedule("when pigs fly")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeParse))
	assert.Equal(t, prior, *j.NextRunAt, "invalid expressions leave the schedule unchanged")
}

func TestSaveRequiresNameAndBinding(t *testing.T) {
	j := New(newStubScheduler(), "   ", nil)
	require.Error(t, j.Save(context.Background()))

	unbound := &Job{Name: "tick"}
	require.Error(t, unbound.Save(context.Background()))
}

func TestSavePersistsAndEmits(t *testing.T) {
	s := newStubScheduler()
	j := New(s, "  report  ", nil)

	require.NoError(t, j.Save(context.Background()))

	assert.Equal(t, "report", j.Name, "name normalized on save")
	assert.Equal(t, 1, s.store.saves)
	assert.Equal(t, []Event{EventSave}, s.events)
}

func TestSavePropagatesStoreErrors(t *testing.T) {
	s := newStubScheduler()
	s.store.err = errors.New("locked database")

	j := New(s, "report", nil)
	err := j.Save(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked database")
	assert.Empty(t, s.events, "no save event on failure")
}

func TestRemoveDeletesByID(t *testing.T) {
	s := newStubScheduler()
	j := New(s, "report", nil)

	require.NoError(t, j.Remove(context.Background()))

	assert.Equal(t, []string{j.ID}, s.store.deletes)
	assert.Equal(t, []Event{EventRemove}, s.events)
}

func TestUniqueDeclaration(t *testing.T) {
	j := New(newStubScheduler(), "report", nil)

	j.Unique(map[string]any{"name": "report", "region": "eu"}, true)

	assert.Equal(t, "eu", j.UniqueKey["region"])
	assert.True(t, j.InsertOnly)
}

func TestFetchStatusIsReadOnlyProjection(t *testing.T) {
	now := time.Now()
	j := New(newStubScheduler(), "report", nil)
	j.RunCount = 3
	j.FinishedCount = 2
	j.FailCount = 1
	j.LockedAt = &now
	j.LastRunAt = &now

	status := j.FetchStatus()

	assert.True(t, status.Running)
	assert.Equal(t, 3, status.RunCount)
	assert.Equal(t, 2, status.FinishedCount)
	assert.Equal(t, 1, status.FailCount)

	// Mutating the projection must not touch the record
	*status.LockedAt = now.Add(time.Hour)
	assert.Equal(t, now, *j.LockedAt)
}
