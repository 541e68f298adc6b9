package job

import "time"

// IsRunning reports whether a run has been claimed but not yet
// completed: LockedAt is set and no finish has been recorded since the
// last start.
func (j *Job) IsRunning() bool {
	if j.LockedAt == nil || j.LastRunAt == nil {
		return false
	}
	return j.LastFinishedAt == nil || j.LastFinishedAt.Before(*j.LastRunAt)
}

// IsExpired reports whether the claim has outlived the given maximum
// lock lifetime, signalling a worker crashed mid-execution. The
// scheduler is responsible for forcibly releasing expired locks; this
// only evaluates the predicate.
func (j *Job) IsExpired(lockDeadline time.Duration) bool {
	if j.LockedAt == nil {
		return false
	}
	return j.clock().Sub(*j.LockedAt) > lockDeadline
}

// Touch refreshes LockedAt to prove liveness from a long-running
// handler, preventing premature expiry reclamation. Monotonic
// last-write-wins: the timestamp only moves forward. No effect when
// the job is not locked.
func (j *Job) Touch() {
	if j.LockedAt == nil {
		return
	}
	now := j.clock()
	if now.After(*j.LockedAt) {
		j.LockedAt = &now
		j.touchUpdated()
	}
}
