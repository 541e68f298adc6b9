package job

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marquev/sked/errors"
)

// cronParser accepts the standard 5-field syntax plus descriptors
// ("@hourly", "@every 5m").
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Accepted layouts for RepeatAt time-of-day strings.
var repeatAtLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3:04 pm", "3:04pm"}

// ComputeNextRunAt computes the next eligible run time from the job's
// repeat fields and the current clock, mutating NextRunAt (or setting
// it nil when the job is retired) and returning the job for chaining.
//
// Fail-soft: on a malformed timezone, time-of-day, or interval spec the
// previous NextRunAt is kept and the parse error is recorded in
// FailReason, so a bad spec never drops the job from the schedule.
func (j *Job) ComputeNextRunAt() *Job {
	if j.RepeatAt == "" && j.RepeatInterval == "" {
		// Non-recurring (e.g. a once job already scheduled): leave as-is.
		return j
	}

	now := j.clock()

	loc, err := j.location()
	if err != nil {
		j.FailReason = err.Error()
		return j
	}

	var candidate time.Time
	if j.RepeatAt != "" {
		// RepeatAt takes precedence over RepeatInterval when both are set.
		candidate, err = j.nextTimeOfDay(now, loc)
	} else {
		candidate, err = j.nextFromInterval(now, loc)
	}
	if err != nil {
		j.FailReason = err.Error()
		return j
	}

	candidate, retired := j.applySkipDays(candidate)
	if retired {
		j.NextRunAt = nil
		j.FailReason = "all weekdays are skipped; job retired"
		j.touchUpdated()
		return j
	}

	candidate, retired = j.clampToDateBounds(candidate, loc)
	if retired {
		j.NextRunAt = nil
		j.touchUpdated()
		return j
	}

	j.NextRunAt = &candidate
	j.touchUpdated()
	return j
}

// location resolves RepeatTimezone, defaulting to the local zone.
func (j *Job) location() (*time.Location, error) {
	if j.RepeatTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(j.RepeatTimezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTimeParse, "unknown timezone %q", j.RepeatTimezone)
	}
	return loc, nil
}

// nextTimeOfDay pins the next occurrence of the RepeatAt wall-clock
// time: today if it is still ahead, otherwise tomorrow.
func (j *Job) nextTimeOfDay(now time.Time, loc *time.Location) (time.Time, error) {
	var parsed time.Time
	var err error
	for _, layout := range repeatAtLayouts {
		parsed, err = time.Parse(layout, j.RepeatAt)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrTimeParse, "unparseable repeat-at time %q", j.RepeatAt)
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, loc)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

// nextFromInterval evaluates RepeatInterval as either a cron expression
// or a human-readable duration.
func (j *Job) nextFromInterval(now time.Time, loc *time.Location) (time.Time, error) {
	if schedule, err := cronParser.Parse(j.RepeatInterval); err == nil {
		// robfig's SpecSchedule evaluates in the location of the time
		// it is given, so the zone offset is honored here.
		return schedule.Next(now.In(loc)), nil
	}

	d, err := ParseHumanInterval(j.RepeatInterval)
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrTimeParse, "repeat interval %q is neither cron nor a duration", j.RepeatInterval)
	}
	if d <= 0 {
		return time.Time{}, errors.Wrapf(errors.ErrTimeParse, "repeat interval %q is not positive", j.RepeatInterval)
	}

	// Interval repeats anchor on the last run when one exists, so a
	// "5 minutes" job fires 5 minutes after its previous start even if
	// recomputation happens mid-cycle.
	base := now
	if j.LastRunAt != nil {
		base = *j.LastRunAt
	}
	return base.Add(d), nil
}

// applySkipDays advances the candidate past skipped weekdays, keeping
// the time-of-day component. Bounded to 7 advances: if every weekday is
// skipped the job is unschedulable and must be retired.
func (j *Job) applySkipDays(candidate time.Time) (next time.Time, retired bool) {
	if len(j.SkipDays) == 0 {
		return candidate, false
	}

	skipped := make(map[time.Weekday]bool, len(j.SkipDays))
	for _, d := range j.SkipDays {
		skipped[d] = true
	}

	for i := 0; i < 7; i++ {
		if !skipped[candidate.Weekday()] {
			return candidate, false
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return time.Time{}, true
}

// clampToDateBounds enforces [StartDate, EndDate]. Before the window
// the candidate advances to the window's start along its recurrence;
// at or past the window's end the job is retired.
func (j *Job) clampToDateBounds(candidate time.Time, loc *time.Location) (next time.Time, retired bool) {
	if j.StartDate != nil && candidate.Before(*j.StartDate) {
		candidate = j.advanceToStart(candidate, *j.StartDate, loc)
	}
	if j.EndDate != nil && !candidate.Before(*j.EndDate) {
		return time.Time{}, true
	}
	return candidate, false
}

// advanceToStart moves the candidate to the first recurrence at or
// after the start date.
func (j *Job) advanceToStart(candidate, start time.Time, loc *time.Location) time.Time {
	if j.RepeatAt == "" {
		if schedule, err := cronParser.Parse(j.RepeatInterval); err == nil {
			return schedule.Next(start.In(loc).Add(-time.Second))
		}
		if d, err := ParseHumanInterval(j.RepeatInterval); err == nil && d > 0 {
			// Jump whole cycles instead of looping one interval at a time.
			gap := start.Sub(candidate)
			steps := gap / d
			if gap%d != 0 {
				steps++
			}
			return candidate.Add(steps * d)
		}
		return start
	}

	// Daily time-of-day: advance whole days until inside the window.
	for candidate.Before(start) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
