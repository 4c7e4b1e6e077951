package records

import (
	"fmt"
	"time"
)

// Date truncates t to its calendar day, expressed as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf builds a calendar day.
func DateOf(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DatePtr returns a pointer to the calendar day of t.
func DatePtr(t time.Time) *time.Time {
	d := Date(t)
	return &d
}

// SameDay compares two calendar days.
func SameDay(a, b time.Time) bool {
	return Date(a).Equal(Date(b))
}

// FormatDMY renders a day as d/m/yyyy without padding.
func FormatDMY(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", t.Day(), int(t.Month()), t.Year())
}
