package visit

import "time"

// DateOnly truncates a timestamp to a UTC calendar date. Visit dates are
// stored and compared at this granularity.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59 of the given date, the timestamp the sweep
// stamps onto visits still open at the date boundary.
func EndOfDay(date time.Time) time.Time {
	d := DateOnly(date)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
}

// MonthKey returns the calendar-month bucket a date counts into.
func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// YearKey returns the calendar-year bucket a date counts into.
func YearKey(t time.Time) string { return t.UTC().Format("2006") }

// SameDay reports whether two timestamps fall on the same UTC date.
func SameDay(a, b time.Time) bool { return DateOnly(a).Equal(DateOnly(b)) }
