package job

import (
	"context"
	"time"

	"github.com/marquev/sked/errors"
)

// Run executes the job's handler. The caller must already hold the
// exclusive claim (the store's atomic conditional update); Run does not
// perform the claiming itself and does not re-check for concurrent
// runners.
//
// State machine: Idle -> Locked -> (Succeeded | Failed) -> Idle|Retired.
// Handler errors are captured through the Failed transition and are
// never returned raw; Run only returns an error when persisting the
// resulting state fails.
func (j *Job) Run(ctx context.Context) error {
	now := j.clock()
	j.LockedAt = &now
	j.LastRunAt = &now
	j.RunCount++
	j.touchUpdated()
	j.emit(EventStart)

	if err := j.persist(ctx); err != nil {
		return errors.Wrap(err, "failed to record run start")
	}

	var handler HandlerFunc
	if j.sched != nil {
		handler = j.sched.Handler(j.Name)
	}
	if handler == nil {
		j.Fail(errors.Newf("no handler registered for job %q", j.Name))
	} else if result, err := handler(ctx, j.Data); err != nil {
		j.Fail(err)
	} else {
		j.succeed(result)
	}

	j.emit(EventComplete)
	if err := j.persist(ctx); err != nil {
		return errors.Wrap(err, "failed to record run completion")
	}
	return nil
}

// succeed applies the Locked -> Succeeded transition.
func (j *Job) succeed(result []byte) {
	finish := j.clock()
	j.LastFinishedAt = &finish
	j.FinishedCount++
	if j.ShouldSaveResult {
		j.Result = result
	}
	j.LockedAt = nil

	if j.Type == TypeOnce {
		// Once jobs self-cancel after one successful run.
		j.NextRunAt = nil
	} else {
		j.ComputeNextRunAt()
	}
	j.touchUpdated()
	j.emit(EventSuccess)
}

// Fail applies the Locked -> Failed transition: records the failure,
// releases the claim, and schedules the retry (via backoff) or the next
// natural recurrence. Idempotent with respect to repeated invocation;
// callers are responsible for invoking it at the correct point.
func (j *Job) Fail(cause error) *Job {
	now := j.clock()
	j.FailReason = cause.Error()
	j.FailedAt = &now
	j.FailCount++
	j.LastFinishedAt = &now
	j.LockedAt = nil

	if j.Backoff != nil {
		retryAt := now.Add(j.retryDelay())
		j.NextRunAt = &retryAt
	} else if j.Type == TypeOnce {
		j.NextRunAt = nil
	} else {
		j.ComputeNextRunAt()
	}

	j.touchUpdated()
	j.emit(EventFail)
	return j
}

// retryDelay computes the backoff delay for the current failure count.
// Fixed: the configured delay. Exponential: delay * 2^(failCount-1),
// capped at MaxDelay (or one hour when MaxDelay is unset).
func (j *Job) retryDelay() time.Duration {
	delay := j.Backoff.Delay
	if j.Backoff.Type != BackoffExponential {
		return delay
	}

	ceiling := j.Backoff.MaxDelay
	if ceiling <= 0 {
		ceiling = defaultBackoffCeiling
	}

	exponent := j.FailCount - 1
	for i := 0; i < exponent; i++ {
		delay *= 2
		if delay >= ceiling || delay <= 0 { // <= 0 guards overflow
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// persist saves through the storage boundary when bound. Run tolerates
// an unbound record so the state machine is testable in isolation.
func (j *Job) persist(ctx context.Context) error {
	if j.sched == nil {
		return nil
	}
	return j.sched.JobStore().Save(ctx, j)
}
