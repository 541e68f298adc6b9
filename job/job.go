// Package job implements the persistent job entity: its attribute set,
// recurrence computation, lock/liveness predicates, lifecycle operations,
// and the failure/retry state machine.
//
// A Job is not thread-safe. Each worker operates on its own hydrated
// copy; mutual exclusion across workers comes from the store's atomic
// claim, not from this package.
package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type classifies how a job repeats.
type Type string

const (
	// TypeOnce jobs retire after one successful run.
	TypeOnce Type = "once"
	// TypeNormal jobs may recur according to their repeat fields.
	TypeNormal Type = "normal"
)

// Event identifies a job state transition reported to the emission sink.
type Event string

const (
	EventStart    Event = "start"
	EventSuccess  Event = "success"
	EventFail     Event = "fail"
	EventComplete Event = "complete"
	EventSave     Event = "save"
	EventRemove   Event = "remove"
)

// HandlerFunc executes the work for a named job. It receives the job's
// opaque data payload and returns a result payload (persisted only when
// the job opted in via SetShouldSaveResult) or an error.
//
// Handlers MUST check ctx.Done() periodically and exit cleanly when
// cancelled.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (json.RawMessage, error)

// Store is the persistence boundary consumed by a job. The concrete
// implementation lives in the store package; this narrow interface
// avoids a dependency cycle and keeps the record storage-agnostic.
type Store interface {
	// Save persists the record: insert when it has no identifier,
	// atomic find-or-create when a unique key is declared (honoring
	// insert-only), upsert by identifier otherwise.
	Save(ctx context.Context, j *Job) error
	// Delete removes the record by identifier. Deleting an absent
	// record is not an error.
	Delete(ctx context.Context, id string) error
}

// Scheduler is the non-owning handle a job uses to reach its
// collaborators. Injected at construction; the record's lifetime is
// independent of the scheduler's.
type Scheduler interface {
	// JobStore returns the persistence boundary.
	JobStore() Store
	// Handler looks up the registered handler for a job name.
	// Returns nil when no handler is registered.
	Handler(name string) HandlerFunc
	// Emit reports a state transition. Best-effort: implementations
	// must never block the caller.
	Emit(event Event, j *Job)
	// LockDeadline returns the configured maximum lock lifetime.
	LockDeadline() time.Duration
}

// BackoffType selects the retry delay policy.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// defaultBackoffCeiling caps exponential growth when Backoff.MaxDelay
// is unset.
const defaultBackoffCeiling = time.Hour

// Backoff governs retry scheduling after a failure.
type Backoff struct {
	Type     BackoffType   `json:"type"`
	Delay    time.Duration `json:"delay"`
	MaxDelay time.Duration `json:"max_delay,omitempty"` // cap for exponential growth
}

// Job is a single unit of deferred or recurring work.
//
// Nullable timestamps are pointers: nil NextRunAt means the job will
// not run again (retired); non-nil LockedAt means a worker currently
// holds the execution claim.
type Job struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"` // identifies the handler
	Type     Type    `json:"type"`
	Priority int     `json:"priority"` // higher sorts first
	Disabled bool    `json:"disabled"`
	Progress float64 `json:"progress"` // advisory, 0-100, set by the running handler

	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`

	RunCount      int `json:"run_count"`
	FinishedCount int `json:"finished_count"`
	FailCount     int `json:"fail_count"`

	RepeatInterval string         `json:"repeat_interval,omitempty"` // cron expression or human-readable duration
	RepeatTimezone string         `json:"repeat_timezone,omitempty"` // IANA zone name
	RepeatAt       string         `json:"repeat_at,omitempty"`       // time-of-day, e.g. "15:00"
	StartDate      *time.Time     `json:"start_date,omitempty"`
	EndDate        *time.Time     `json:"end_date,omitempty"`
	SkipDays       []time.Weekday `json:"skip_days,omitempty"`

	UniqueKey  map[string]any `json:"unique_key,omitempty"` // natural key for idempotent persistence
	InsertOnly bool           `json:"insert_only,omitempty"`

	Backoff *Backoff `json:"backoff,omitempty"`

	FailReason string     `json:"fail_reason,omitempty"`
	FailedAt   *time.Time `json:"failed_at,omitempty"`

	ShouldSaveResult bool            `json:"should_save_result"`
	Result           json.RawMessage `json:"result,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"` // opaque handler payload

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	sched   Scheduler        // non-owning handle, reached only for persistence and emission
	timeNow func() time.Time // injectable for testing
}

// New creates a fresh in-memory job bound to the given scheduler handle.
func New(s Scheduler, name string, data json.RawMessage) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      TypeNormal,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
		sched:     s,
		timeNow:   time.Now,
	}
}

// Bind attaches the scheduler handle to a job hydrated from storage.
// Returns the job for chaining.
func (j *Job) Bind(s Scheduler) *Job {
	j.sched = s
	if j.timeNow == nil {
		j.timeNow = time.Now
	}
	return j
}

// Rehydrate replaces the record's persisted attributes with those of
// the stored row, keeping the scheduler handle and clock intact. Used
// by the store after a unique save, where the winning row may be one a
// concurrent racer created.
func (j *Job) Rehydrate(winner *Job) {
	sched, timeNow := j.sched, j.timeNow
	*j = *winner
	j.sched = sched
	if timeNow != nil {
		j.timeNow = timeNow
	}
}

// WithClock overrides the job's clock. For testing.
func (j *Job) WithClock(now func() time.Time) *Job {
	j.timeNow = now
	return j
}

func (j *Job) clock() time.Time {
	if j.timeNow == nil {
		return time.Now()
	}
	return j.timeNow()
}

// touchUpdated bumps the record's UpdatedAt to the current time.
func (j *Job) touchUpdated() {
	j.UpdatedAt = j.clock()
}

// emit reports a transition to the scheduler's event sink, if bound.
func (j *Job) emit(event Event) {
	if j.sched != nil {
		j.sched.Emit(event, j)
	}
}
