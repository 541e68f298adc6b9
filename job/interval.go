package job

import (
	"strconv"
	"strings"
	"time"

	"github.com/marquev/sked/errors"
)

// Unit table for human-readable intervals. Months and years are
// calendar-approximate (30 and 365 days), matching the convention of
// natural-language duration grammars.
var intervalUnits = map[string]time.Duration{
	"millisecond": time.Millisecond,
	"ms":          time.Millisecond,
	"second":      time.Second,
	"sec":         time.Second,
	"s":           time.Second,
	"minute":      time.Minute,
	"min":         time.Minute,
	"m":           time.Minute,
	"hour":        time.Hour,
	"hr":          time.Hour,
	"h":           time.Hour,
	"day":         24 * time.Hour,
	"d":           24 * time.Hour,
	"week":        7 * 24 * time.Hour,
	"wk":          7 * 24 * time.Hour,
	"w":           7 * 24 * time.Hour,
	"month":       30 * 24 * time.Hour,
	"year":        365 * 24 * time.Hour,
	"yr":          365 * 24 * time.Hour,
	"y":           365 * 24 * time.Hour,
}

// ParseHumanInterval parses a natural-language duration such as
// "5 minutes", "1 day", or "2 hours 30 minutes". A bare number is
// treated as seconds. Falls back to Go duration syntax ("90s", "1h30m")
// before giving up with ErrTimeParse.
func ParseHumanInterval(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return 0, errors.Wrap(errors.ErrTimeParse, "empty interval")
	}

	// Bare number means seconds
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}

	if d, ok := parseUnitPairs(trimmed); ok {
		return d, nil
	}

	if d, err := time.ParseDuration(trimmed); err == nil {
		return d, nil
	}

	return 0, errors.Wrapf(errors.ErrTimeParse, "unparseable interval %q", s)
}

// parseUnitPairs consumes "<number> <unit>" pairs, tolerating "and" and
// comma separators ("1 hour and 30 minutes").
func parseUnitPairs(s string) (time.Duration, bool) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	var total time.Duration
	var pairs int

	for i := 0; i < len(fields); {
		if fields[i] == "and" {
			i++
			continue
		}
		n, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || i+1 >= len(fields) {
			return 0, false
		}
		// Exact match first so "ms" is not de-pluralized into "m"
		unit, ok := intervalUnits[fields[i+1]]
		if !ok {
			if unit, ok = intervalUnits[strings.TrimSuffix(fields[i+1], "s")]; !ok {
				return 0, false
			}
		}
		total += time.Duration(n * float64(unit))
		pairs++
		i += 2
	}

	return total, pairs > 0
}
