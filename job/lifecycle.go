package job

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/marquev/sked/errors"
)

// RepeatOptions carries the optional settings for RepeatEvery.
type RepeatOptions struct {
	Timezone string
	SkipDays []time.Weekday
}

// Enable clears the disabled flag. Returns the job for chaining.
func (j *Job) Enable() *Job {
	j.Disabled = false
	j.touchUpdated()
	return j
}

// Disable marks the job so it is never claimed for execution,
// regardless of NextRunAt. Returns the job for chaining.
func (j *Job) Disable() *Job {
	j.Disabled = true
	j.touchUpdated()
	return j
}

// RepeatEvery sets the repeat interval (cron expression or
// human-readable duration) and optional timezone / skip days. It does
// not compute NextRunAt; callers invoke ComputeNextRunAt when ready.
func (j *Job) RepeatEvery(interval string, opts *RepeatOptions) *Job {
	j.RepeatInterval = interval
	if opts != nil {
		if opts.Timezone != "" {
			j.RepeatTimezone = opts.Timezone
		}
		if len(opts.SkipDays) > 0 {
			j.SkipDays = opts.SkipDays
		}
	}
	j.touchUpdated()
	return j
}

// SetRepeatAt pins a daily time-of-day fire time, e.g. "15:00". When
// both RepeatAt and RepeatInterval are set, RepeatAt takes precedence
// in the recurrence engine.
func (j *Job) SetRepeatAt(timeOfDay string) *Job {
	j.RepeatAt = timeOfDay
	j.touchUpdated()
	return j
}

// Unique declares the natural key used for idempotent persistence.
// On Save the store performs an atomic find-or-create keyed by this
// query; with insertOnly an existing match is left untouched.
func (j *Job) Unique(key map[string]any, insertOnly bool) *Job {
	j.UniqueKey = key
	j.InsertOnly = insertOnly
	j.touchUpdated()
	return j
}

// SetShouldSaveResult gates whether the handler's return value is
// persisted on success.
func (j *Job) SetShouldSaveResult(flag bool) *Job {
	j.ShouldSaveResult = flag
	j.touchUpdated()
	return j
}

// Schedule parses a relative or absolute time expression and sets
// NextRunAt. Accepts "now", "in <interval>", a bare interval treated as
// relative ("5 minutes"), or an absolute timestamp (RFC3339 or
// "2006-01-02 15:04"). Invalid expressions yield ErrTimeParse and
// leave NextRunAt unchanged.
func (j *Job) Schedule(when string) error {
	t, err := j.parseWhen(when)
	if err != nil {
		return err
	}
	j.NextRunAt = &t
	j.touchUpdated()
	return nil
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func (j *Job) parseWhen(when string) (time.Time, error) {
	now := j.clock()
	trimmed := strings.TrimSpace(when)

	if strings.EqualFold(trimmed, "now") {
		return now, nil
	}

	relative := trimmed
	if strings.HasPrefix(strings.ToLower(trimmed), "in ") {
		relative = trimmed[3:]
	}
	if d, err := ParseHumanInterval(relative); err == nil {
		return now.Add(d), nil
	}

	// Layouts without a zone are wall-clock times in the local zone;
	// RFC3339 carries its own offset and is unaffected.
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.Wrapf(errors.ErrTimeParse, "unparseable schedule time %q", when)
}

// Save persists the record through the scheduler's storage boundary.
// Persistence contract: no identifier means insert; a declared unique
// key means atomic find-or-create honoring insert-only; otherwise
// upsert by identifier.
func (j *Job) Save(ctx context.Context) error {
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" {
		return errors.New("job name cannot be empty")
	}
	if j.sched == nil {
		return errors.New("job is not bound to a scheduler")
	}

	j.touchUpdated()
	if err := j.sched.JobStore().Save(ctx, j); err != nil {
		return errors.Wrapf(err, "failed to save job %q", j.Name)
	}

	j.emit(EventSave)
	return nil
}

// Remove deletes the persisted record by identifier. Removing a job
// that is already absent is a no-op, not an error.
func (j *Job) Remove(ctx context.Context) error {
	if j.sched == nil {
		return errors.New("job is not bound to a scheduler")
	}
	if err := j.sched.JobStore().Delete(ctx, j.ID); err != nil {
		return errors.Wrapf(err, "failed to remove job %q", j.Name)
	}
	j.emit(EventRemove)
	return nil
}

// Status is a read-only projection of a job's counters and timestamps.
type Status struct {
	Running        bool       `json:"running"`
	RunCount       int        `json:"run_count"`
	FinishedCount  int        `json:"finished_count"`
	FailCount      int        `json:"fail_count"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	FailReason     string     `json:"fail_reason,omitempty"`
}

// FetchStatus returns a read-only projection of counts and timestamps
// without participating in the run state machine.
func (j *Job) FetchStatus() Status {
	return Status{
		Running:        j.IsRunning(),
		RunCount:       j.RunCount,
		FinishedCount:  j.FinishedCount,
		FailCount:      j.FailCount,
		NextRunAt:      copyTime(j.NextRunAt),
		LockedAt:       copyTime(j.LockedAt),
		LastRunAt:      copyTime(j.LastRunAt),
		LastFinishedAt: copyTime(j.LastFinishedAt),
		FailedAt:       copyTime(j.FailedAt),
		FailReason:     j.FailReason,
	}
}

// Snapshot produces a deep-copied, plain projection of all attributes
// with no live references, for the persistence and external-reporting
// boundary. The snapshot marshals to the persisted document layout.
func (j *Job) Snapshot() Job {
	snap := *j
	snap.sched = nil
	snap.timeNow = nil

	snap.NextRunAt = copyTime(j.NextRunAt)
	snap.LockedAt = copyTime(j.LockedAt)
	snap.LastRunAt = copyTime(j.LastRunAt)
	snap.LastFinishedAt = copyTime(j.LastFinishedAt)
	snap.StartDate = copyTime(j.StartDate)
	snap.EndDate = copyTime(j.EndDate)
	snap.FailedAt = copyTime(j.FailedAt)

	if j.SkipDays != nil {
		snap.SkipDays = append([]time.Weekday(nil), j.SkipDays...)
	}
	if j.UniqueKey != nil {
		snap.UniqueKey = make(map[string]any, len(j.UniqueKey))
		for k, v := range j.UniqueKey {
			snap.UniqueKey[k] = v
		}
	}
	if j.Backoff != nil {
		b := *j.Backoff
		snap.Backoff = &b
	}
	snap.Result = append(json.RawMessage(nil), j.Result...)
	snap.Data = append(json.RawMessage(nil), j.Data...)

	return snap
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
