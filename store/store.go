// Package store persists job records in SQLite and provides the atomic
// primitives the scheduler's concurrency model relies on: conditional
// claim of the lock fields, find-or-create on a unique key, and the
// expired-lock sweep.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marquev/sked/errors"
	"github.com/marquev/sked/job"
)

// Store handles persistence of job records.
type Store struct {
	db *sql.DB
}

// New creates a job store on the given database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save persists a record. Contract:
//   - no identifier: assign one and insert
//   - unique key declared: atomic find-or-create keyed by it; with
//     insert-only an existing match is left untouched, otherwise it is
//     updated in place. Either way the record is rehydrated so the
//     caller observes the row that actually won.
//   - otherwise: upsert by identifier.
//
// Safe under concurrent callers racing to create the "same" unique job:
// the partial unique index on unique_key resolves the race inside
// SQLite, so at most one matching row ever exists.
func (s *Store) Save(ctx context.Context, j *job.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}

	if j.UniqueKey != nil {
		return s.saveUnique(ctx, j)
	}
	return s.upsertByID(ctx, j)
}

func (s *Store) upsertByID(ctx context.Context, j *job.Job) error {
	query := insertJobSQL + `
		ON CONFLICT(id) DO UPDATE SET ` + updateJobSet

	args, err := insertArgs(j)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		err = errors.Wrap(err, "failed to save job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", j.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Name: %s", j.Name))
		return err
	}
	return nil
}

func (s *Store) saveUnique(ctx context.Context, j *job.Job) error {
	key, err := canonicalUniqueKey(j.UniqueKey)
	if err != nil {
		return err
	}

	// A record that already owns a row (a re-save, including the run
	// state machine persisting mid-execution) updates in place by
	// identifier; the unique conflict path is only for first-time
	// persistence racing on the key.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = ?)`, j.ID).Scan(&exists); err != nil {
		return errors.Wrap(err, "failed to check for existing job")
	}
	if exists {
		return s.upsertByID(ctx, j)
	}

	// The conflict target must repeat the partial index's predicate or
	// SQLite refuses to match it.
	var query string
	if j.InsertOnly {
		// An existing match is left untouched.
		query = insertJobSQL + ` ON CONFLICT(unique_key) WHERE unique_key IS NOT NULL DO NOTHING`
	} else {
		query = insertJobSQL + ` ON CONFLICT(unique_key) WHERE unique_key IS NOT NULL DO UPDATE SET ` + updateJobSet
	}

	args, err := insertArgs(j)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		err = errors.Wrap(err, "failed to save unique job")
		err = errors.WithDetail(err, fmt.Sprintf("Unique key: %s", key))
		err = errors.WithDetail(err, fmt.Sprintf("Name: %s", j.Name))
		return err
	}

	// Rehydrate: under insert-only a racer may have won, and even on
	// update the winning row keeps its original identifier. The record's
	// scheduler binding survives; only persisted attributes are adopted.
	winner, err := s.getWhere(ctx, "unique_key = ?", key)
	if err != nil {
		return errors.Wrap(err, "failed to load unique job after save")
	}
	j.Rehydrate(winner)
	return nil
}

// Get retrieves a job by identifier. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	j, err := s.getWhere(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Delete removes a job by identifier. Deleting an absent job is a
// no-op, not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		err = errors.Wrap(err, "failed to delete job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", id))
		return err
	}
	if _, err := result.RowsAffected(); err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	return nil
}

// List returns jobs ordered by creation time, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListDue returns claimable jobs whose next run time has arrived:
// enabled, unlocked, and due. Ordered by priority DESC then
// next_run_at ASC so higher-priority work is dispatched first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE disabled = 0
		  AND locked_at IS NULL
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= ?
		ORDER BY priority DESC, next_run_at ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, fmtTime(now), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Claim attempts to take the exclusive execution claim on a job via a
// single atomic compare-and-set against the stored lock fields. Returns
// true iff this caller won the claim. Disabled jobs are never claimed.
func (s *Store) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET locked_at = ?, updated_at = ?
		WHERE id = ?
		  AND disabled = 0
		  AND locked_at IS NULL
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= ?
	`

	result, err := s.db.ExecContext(ctx, query, fmtTime(now), fmtTime(now), id, fmtTime(now))
	if err != nil {
		err = errors.Wrap(err, "failed to claim job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", id))
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows == 1, nil
}

// TouchLock bumps a held lock's timestamp to prove liveness. Monotonic
// last-write-wins: a bump older than the stored timestamp is ignored,
// so it is safe to call repeatedly while the expiry sweep runs.
func (s *Store) TouchLock(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE jobs
		SET locked_at = ?, updated_at = ?
		WHERE id = ?
		  AND locked_at IS NOT NULL
		  AND locked_at < ?
	`
	if _, err := s.db.ExecContext(ctx, query, fmtTime(now), fmtTime(now), id, fmtTime(now)); err != nil {
		err = errors.Wrap(err, "failed to touch job lock")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", id))
		return err
	}
	return nil
}

// UnlockExpired force-releases claims older than the lock deadline,
// reclaiming jobs abandoned by crashed workers. Returns the number of
// locks released.
func (s *Store) UnlockExpired(ctx context.Context, now time.Time, lockDeadline time.Duration) (int, error) {
	cutoff := now.Add(-lockDeadline)
	query := `
		UPDATE jobs
		SET locked_at = NULL, updated_at = ?
		WHERE locked_at IS NOT NULL
		  AND locked_at < ?
	`

	result, err := s.db.ExecContext(ctx, query, fmtTime(now), fmtTime(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "failed to unlock expired jobs")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// canonicalUniqueKey serializes a unique query to its stable stored
// form. json.Marshal sorts map keys, so equal queries always collide.
func canonicalUniqueKey(key map[string]any) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", errors.Wrap(err, "failed to canonicalize unique key")
	}
	return string(raw), nil
}
