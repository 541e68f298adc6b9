package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/marquev/sked/errors"
	"github.com/marquev/sked/job"
)

// jobColumns is the canonical column list, shared by every SELECT so
// scan targets stay aligned with the schema.
const jobColumns = `id, name, type, priority, disabled, progress,
	next_run_at, locked_at, last_run_at, last_finished_at,
	run_count, finished_count, fail_count,
	repeat_interval, repeat_timezone, repeat_at,
	start_date, end_date, skip_days,
	unique_key, insert_only,
	backoff_type, backoff_delay_ms, backoff_max_delay_ms,
	fail_reason, failed_at,
	should_save_result, result, data,
	created_at, updated_at`

const insertJobSQL = `
	INSERT INTO jobs (` + jobColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// updateJobSet rewrites every mutable column on conflict. The id and
// created_at of the winning row are preserved.
const updateJobSet = `
	name = excluded.name,
	type = excluded.type,
	priority = excluded.priority,
	disabled = excluded.disabled,
	progress = excluded.progress,
	next_run_at = excluded.next_run_at,
	locked_at = excluded.locked_at,
	last_run_at = excluded.last_run_at,
	last_finished_at = excluded.last_finished_at,
	run_count = excluded.run_count,
	finished_count = excluded.finished_count,
	fail_count = excluded.fail_count,
	repeat_interval = excluded.repeat_interval,
	repeat_timezone = excluded.repeat_timezone,
	repeat_at = excluded.repeat_at,
	start_date = excluded.start_date,
	end_date = excluded.end_date,
	skip_days = excluded.skip_days,
	unique_key = excluded.unique_key,
	insert_only = excluded.insert_only,
	backoff_type = excluded.backoff_type,
	backoff_delay_ms = excluded.backoff_delay_ms,
	backoff_max_delay_ms = excluded.backoff_max_delay_ms,
	fail_reason = excluded.fail_reason,
	failed_at = excluded.failed_at,
	should_save_result = excluded.should_save_result,
	result = excluded.result,
	data = excluded.data,
	updated_at = excluded.updated_at`

// fmtTime renders the stored timestamp form: UTC RFC3339 at second
// precision, so the TEXT columns stay fixed-width and compare correctly
// in SQL predicates.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeSkipDays stores the skip set as comma-joined weekday numbers
// (0=Sunday), e.g. "0,6".
func encodeSkipDays(days []time.Weekday) any {
	if len(days) == 0 {
		return nil
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeSkipDays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return nil, errors.Newf("malformed skip_days entry %q", part)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

// insertArgs produces the VALUES tuple for insertJobSQL.
func insertArgs(j *job.Job) ([]any, error) {
	var uniqueKey any
	if j.UniqueKey != nil {
		key, err := canonicalUniqueKey(j.UniqueKey)
		if err != nil {
			return nil, err
		}
		uniqueKey = key
	}

	var backoffType, backoffDelay, backoffMax any
	if j.Backoff != nil {
		backoffType = string(j.Backoff.Type)
		backoffDelay = j.Backoff.Delay.Milliseconds()
		if j.Backoff.MaxDelay > 0 {
			backoffMax = j.Backoff.MaxDelay.Milliseconds()
		}
	}

	return []any{
		j.ID,
		j.Name,
		string(j.Type),
		j.Priority,
		j.Disabled,
		j.Progress,
		fmtTimePtr(j.NextRunAt),
		fmtTimePtr(j.LockedAt),
		fmtTimePtr(j.LastRunAt),
		fmtTimePtr(j.LastFinishedAt),
		j.RunCount,
		j.FinishedCount,
		j.FailCount,
		nullStr(j.RepeatInterval),
		nullStr(j.RepeatTimezone),
		nullStr(j.RepeatAt),
		fmtTimePtr(j.StartDate),
		fmtTimePtr(j.EndDate),
		encodeSkipDays(j.SkipDays),
		uniqueKey,
		j.InsertOnly,
		backoffType,
		backoffDelay,
		backoffMax,
		nullStr(j.FailReason),
		fmtTimePtr(j.FailedAt),
		j.ShouldSaveResult,
		nullStr(string(j.Result)),
		nullStr(string(j.Data)),
		fmtTime(j.CreatedAt),
		fmtTime(j.UpdatedAt),
	}, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one row into a job record.
func scanJob(row rowScanner) (*job.Job, error) {
	var j job.Job
	var jobType string
	var nextRunAt, lockedAt, lastRunAt, lastFinishedAt sql.NullString
	var repeatInterval, repeatTimezone, repeatAt sql.NullString
	var startDate, endDate, skipDays sql.NullString
	var uniqueKey sql.NullString
	var backoffType sql.NullString
	var backoffDelay, backoffMax sql.NullInt64
	var failReason, failedAt sql.NullString
	var result, data sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&j.ID,
		&j.Name,
		&jobType,
		&j.Priority,
		&j.Disabled,
		&j.Progress,
		&nextRunAt,
		&lockedAt,
		&lastRunAt,
		&lastFinishedAt,
		&j.RunCount,
		&j.FinishedCount,
		&j.FailCount,
		&repeatInterval,
		&repeatTimezone,
		&repeatAt,
		&startDate,
		&endDate,
		&skipDays,
		&uniqueKey,
		&j.InsertOnly,
		&backoffType,
		&backoffDelay,
		&backoffMax,
		&failReason,
		&failedAt,
		&j.ShouldSaveResult,
		&result,
		&data,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Type = job.Type(jobType)

	if j.NextRunAt, err = parseTimePtr(nextRunAt, "next_run_at", j.ID); err != nil {
		return nil, err
	}
	if j.LockedAt, err = parseTimePtr(lockedAt, "locked_at", j.ID); err != nil {
		return nil, err
	}
	if j.LastRunAt, err = parseTimePtr(lastRunAt, "last_run_at", j.ID); err != nil {
		return nil, err
	}
	if j.LastFinishedAt, err = parseTimePtr(lastFinishedAt, "last_finished_at", j.ID); err != nil {
		return nil, err
	}
	if j.StartDate, err = parseTimePtr(startDate, "start_date", j.ID); err != nil {
		return nil, err
	}
	if j.EndDate, err = parseTimePtr(endDate, "end_date", j.ID); err != nil {
		return nil, err
	}
	if j.FailedAt, err = parseTimePtr(failedAt, "failed_at", j.ID); err != nil {
		return nil, err
	}

	j.RepeatInterval = repeatInterval.String
	j.RepeatTimezone = repeatTimezone.String
	j.RepeatAt = repeatAt.String
	j.FailReason = failReason.String

	if skipDays.Valid {
		if j.SkipDays, err = decodeSkipDays(skipDays.String); err != nil {
			return nil, errors.Wrapf(err, "job %s", j.ID)
		}
	}

	if uniqueKey.Valid {
		if err := json.Unmarshal([]byte(uniqueKey.String), &j.UniqueKey); err != nil {
			return nil, errors.Wrapf(err, "failed to parse unique_key for job %s", j.ID)
		}
	}

	if backoffType.Valid {
		j.Backoff = &job.Backoff{
			Type:  job.BackoffType(backoffType.String),
			Delay: time.Duration(backoffDelay.Int64) * time.Millisecond,
		}
		if backoffMax.Valid {
			j.Backoff.MaxDelay = time.Duration(backoffMax.Int64) * time.Millisecond
		}
	}

	if result.Valid {
		j.Result = json.RawMessage(result.String)
	}
	if data.Valid {
		j.Data = json.RawMessage(data.String)
	}

	if j.CreatedAt, err = parseTime(createdAt, "created_at", j.ID); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updatedAt, "updated_at", j.ID); err != nil {
		return nil, err
	}

	return &j, nil
}

func parseTime(s, column, id string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Data corruption or schema mismatch
		return time.Time{}, errors.Wrapf(err, "failed to parse %s for job %s", column, id)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString, column, id string) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String, column, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// scanJobs scans all rows from a query result.
func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}
	return jobs, nil
}

// getWhere fetches a single job matching the given predicate.
func (s *Store) getWhere(ctx context.Context, where string, args ...any) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + where
	j, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "predicate %q", where)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return j, nil
}
