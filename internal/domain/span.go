package domain

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// DateOf returns the calendar date of t (in t's location) as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, Invalid("date", "expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// SpanMinutes places start and end on date and returns the whole minutes
// between them. An end at or before start falls on the following day.
// Equal times are rejected rather than treated as a zero-length span.
func SpanMinutes(date time.Time, start, end Clock) (int, error) {
	if !start.Valid() {
		return 0, Invalid("start", "time of day out of range")
	}
	if !end.Valid() {
		return 0, Invalid("end", "time of day out of range")
	}
	if start == end {
		return 0, Invalid("end", "end time must differ from start time")
	}
	base := DateOf(date)
	from := base.Add(start.Duration())
	to := base.Add(end.Duration())
	if !to.After(from) {
		to = to.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return 0, fmt.Errorf("%w: span %s-%s does not advance", ErrValidation, start, end)
	}
	return int(to.Sub(from) / time.Minute), nil
}
