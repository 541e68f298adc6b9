package job

import (
	"strings"

	"github.com/marquev/sked/errors"
)

// Named priority levels and their integer values. Higher runs first.
const (
	PriorityLowest  = -20
	PriorityLow     = -10
	PriorityNormal  = 0
	PriorityHigh    = 10
	PriorityHighest = 20
)

var priorityNames = map[string]int{
	"lowest":  PriorityLowest,
	"low":     PriorityLow,
	"normal":  PriorityNormal,
	"high":    PriorityHigh,
	"highest": PriorityHighest,
}

// ParsePriority normalizes a priority value to an integer. Accepts an
// integer within [PriorityLowest, PriorityHighest] or one of the named
// levels. Anything else yields ErrInvalidPriority.
func ParsePriority(v any) (int, error) {
	switch p := v.(type) {
	case int:
		return checkPriorityRange(p)
	case int32:
		return checkPriorityRange(int(p))
	case int64:
		return checkPriorityRange(int(p))
	case float64:
		// JSON numbers decode as float64
		return checkPriorityRange(int(p))
	case string:
		if n, ok := priorityNames[strings.ToLower(strings.TrimSpace(p))]; ok {
			return n, nil
		}
		return 0, errors.Wrapf(errors.ErrInvalidPriority, "unrecognized priority name %q", p)
	default:
		return 0, errors.Wrapf(errors.ErrInvalidPriority, "unsupported priority type %T", v)
	}
}

func checkPriorityRange(p int) (int, error) {
	if p < PriorityLowest || p > PriorityHighest {
		return 0, errors.Wrapf(errors.ErrInvalidPriority, "priority %d out of range [%d, %d]", p, PriorityLowest, PriorityHighest)
	}
	return p, nil
}

// SetPriority normalizes and stores the priority. On error the prior
// value is left unchanged.
func (j *Job) SetPriority(v any) error {
	p, err := ParsePriority(v)
	if err != nil {
		return err
	}
	j.Priority = p
	j.touchUpdated()
	return nil
}
