// Package sched drives job execution: it polls the store for due work,
// claims each job atomically, and runs it on a bounded worker pool.
// It also hosts the collaborators a job reaches through its scheduler
// handle: the handler registry, the transition emitter, and the
// dispatch rate limiter.
package sched

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marquev/sked/job"
	"github.com/marquev/sked/store"
)

// dispatchBatchSize bounds how many due jobs a single tick considers.
const dispatchBatchSize = 100

// Config contains scheduler tuning knobs.
type Config struct {
	PollInterval           time.Duration // how often to check for due jobs
	WorkerCount            int           // max jobs running concurrently
	LockDeadline           time.Duration // max lock lifetime before reclamation
	MaxDispatchesPerMinute int           // 0 disables rate limiting
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:           1 * time.Second,
		WorkerCount:            4,
		LockDeadline:           10 * time.Minute,
		MaxDispatchesPerMinute: 0,
	}
}

// Scheduler polls for due jobs and executes them. Implements the
// job.Scheduler boundary interface, so every job it creates or
// hydrates reaches persistence and emission through it.
type Scheduler struct {
	store    *store.Store
	registry *Registry
	emitter  *Emitter
	limiter  *Limiter
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	slots  chan struct{} // bounded worker pool

	log     *zap.SugaredLogger
	timeNow func() time.Time

	mu              sync.Mutex
	ticksSinceStart int64
	lastTickAt      time.Time
}

// New creates a scheduler on the given store.
func New(st *store.Store, cfg Config, log *zap.SugaredLogger) *Scheduler {
	return NewWithContext(context.Background(), st, cfg, log)
}

// NewWithContext creates a scheduler with a parent context.
func NewWithContext(parent context.Context, st *store.Store, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	if cfg.LockDeadline <= 0 {
		cfg.LockDeadline = DefaultConfig().LockDeadline
	}

	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		store:    st,
		registry: NewRegistry(),
		emitter:  NewEmitter(),
		limiter:  NewLimiter(cfg.MaxDispatchesPerMinute),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(chan struct{}, cfg.WorkerCount),
		log:      log,
		timeNow:  time.Now,
	}
}

// WithClock overrides the scheduler's clock. For testing.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.timeNow = now
	s.limiter.timeNow = now
	return s
}

// JobStore implements job.Scheduler.
func (s *Scheduler) JobStore() job.Store { return s.store }

// Handler implements job.Scheduler.
func (s *Scheduler) Handler(name string) job.HandlerFunc { return s.registry.Get(name) }

// LockDeadline implements job.Scheduler.
func (s *Scheduler) LockDeadline() time.Duration { return s.cfg.LockDeadline }

// Emit implements job.Scheduler. Best-effort, never blocks.
func (s *Scheduler) Emit(event job.Event, j *job.Job) {
	s.emitter.Emit(Transition{
		Event: event,
		JobID: j.ID,
		Name:  j.Name,
		At:    s.timeNow(),
	})
}

// Register adds a handler for a job name.
func (s *Scheduler) Register(name string, fn job.HandlerFunc) error {
	return s.registry.Register(name, fn)
}

// Subscribe returns a channel receiving job state transitions.
func (s *Scheduler) Subscribe() chan Transition { return s.emitter.Subscribe() }

// Unsubscribe removes a transition subscriber.
func (s *Scheduler) Unsubscribe(ch chan Transition) { s.emitter.Unsubscribe(ch) }

// NewJob creates an unsaved job bound to this scheduler.
func (s *Scheduler) NewJob(name string, data json.RawMessage) *job.Job {
	return job.New(s, name, data).WithClock(s.timeNow)
}

// Every creates and persists a recurring job. The first run time is
// computed immediately from the interval.
func (s *Scheduler) Every(ctx context.Context, interval, name string, data json.RawMessage, opts *job.RepeatOptions) (*job.Job, error) {
	j := s.NewJob(name, data).RepeatEvery(interval, opts)
	j.ComputeNextRunAt()
	if err := j.Save(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

// Schedule creates and persists a one-shot job to run at the given
// time expression ("now", "in 5 minutes", RFC3339).
func (s *Scheduler) Schedule(ctx context.Context, when, name string, data json.RawMessage) (*job.Job, error) {
	j := s.NewJob(name, data)
	j.Type = job.TypeOnce
	if err := j.Schedule(when); err != nil {
		return nil, err
	}
	if err := j.Save(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

// Now creates and persists a one-shot job due immediately.
func (s *Scheduler) Now(ctx context.Context, name string, data json.RawMessage) (*job.Job, error) {
	return s.Schedule(ctx, "now", name, data)
}

// Start begins the poll loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Infow("Scheduler started",
		"poll_interval", s.cfg.PollInterval,
		"workers", s.cfg.WorkerCount,
		"lock_deadline", s.cfg.LockDeadline)
}

// Stop gracefully stops the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Infow("Scheduler stopped")
}

// run is the main poll loop.
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tickTime := <-ticker.C:
			s.mu.Lock()
			s.lastTickAt = tickTime
			s.ticksSinceStart++
			s.mu.Unlock()

			if err := s.tick(tickTime); err != nil {
				// Don't spam logs - log errors at warn level
				s.log.Warnw("Scheduler tick error", "error", err)
			}
		}
	}
}

// tick reclaims expired locks, then claims and dispatches due jobs.
func (s *Scheduler) tick(now time.Time) error {
	released, err := s.store.UnlockExpired(s.ctx, now, s.cfg.LockDeadline)
	if err != nil {
		return err
	}
	if released > 0 {
		s.log.Warnw("Reclaimed expired job locks", "count", released)
	}

	due, err := s.store.ListDue(s.ctx, now, dispatchBatchSize)
	if err != nil {
		return err
	}

	for i, j := range due {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		if err := s.limiter.Allow(); err != nil {
			s.log.Debugw("Dispatch rate limit reached, deferring remaining jobs",
				"deferred", len(due)-i)
			return nil
		}

		claimed, err := s.store.Claim(s.ctx, j.ID, now)
		if err != nil {
			s.log.Errorw("Failed to claim job", "job_id", j.ID, "name", j.Name, "error", err)
			continue
		}
		if !claimed {
			// Another worker got there first
			continue
		}

		s.dispatch(j)
	}

	return nil
}

// dispatch runs a claimed job on the worker pool. Blocks until a
// worker slot frees up, keeping concurrency bounded.
func (s *Scheduler) dispatch(j *job.Job) {
	select {
	case s.slots <- struct{}{}:
	case <-s.ctx.Done():
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		s.runJob(j)
	}()
}

// runJob executes one claimed job, keeping its lock alive while the
// handler runs.
func (s *Scheduler) runJob(j *job.Job) {
	j.Bind(s).WithClock(s.timeNow)

	log := s.log.With("job_id", j.ID, "name", j.Name)
	log.Debugw("Running job", "run_count", j.RunCount)

	// Heartbeat: bump the lock at half the deadline so a healthy
	// long-running job is never swept.
	hbCtx, stopHeartbeat := context.WithCancel(s.ctx)
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		ticker := time.NewTicker(s.cfg.LockDeadline / 2)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				j.Touch()
				if err := s.store.TouchLock(hbCtx, j.ID, s.timeNow()); err != nil {
					log.Warnw("Failed to refresh job lock", "error", err)
				}
			}
		}
	}()

	err := j.Run(s.ctx)
	stopHeartbeat()
	hb.Wait()

	if err != nil {
		log.Errorw("Failed to persist job run", "error", err)
		return
	}

	if j.FailReason != "" && j.FailedAt != nil && j.LastFinishedAt != nil && j.FailedAt.Equal(*j.LastFinishedAt) {
		log.Warnw("Job run failed",
			"fail_count", j.FailCount,
			"reason", j.FailReason,
			"next_run_at", j.NextRunAt)
		return
	}

	log.Infow("Job run OK",
		"finished_count", j.FinishedCount,
		"next_run_at", j.NextRunAt)
}

// Stats returns scheduler loop statistics.
func (s *Scheduler) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"last_tick_at":      s.lastTickAt,
		"ticks_since_start": s.ticksSinceStart,
		"poll_interval":     s.cfg.PollInterval,
	}
}
