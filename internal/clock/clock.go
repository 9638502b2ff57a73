// Package clock abstracts wall-clock access so observation dates are
// injectable in tests and always anchored to the configured local time zone.
package clock

import (
	"fmt"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System implements Clock using time.Now.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now()
}

// Fixed is a Clock pinned to a single instant, for tests and backfills.
type Fixed struct {
	T time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time {
	return f.T
}

// Today returns the calendar date for clk's current time in the given zone,
// normalized to midnight UTC so it compares and persists as a plain date.
func Today(clk Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Midnight(clk.Now().In(loc))
}

// Midnight truncates t to its calendar date, re-anchored in UTC.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a normalized date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}

// FormatDate renders a normalized date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
