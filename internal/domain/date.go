package domain

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format of date-only values and filters.
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format of time window bounds (UTC).
	ClockLayout = "15:04:05"
)

// FormatDate renders t as yyyy-MM-dd, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a yyyy-MM-dd string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatClock renders the time-of-day part of t in UTC as HH:mm:ss.
func FormatClock(t time.Time) string {
	return t.UTC().Format(ClockLayout)
}

// NewTimeWindow builds a window from two instants, normalized to UTC clock strings.
func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{StartTime: FormatClock(start), EndTime: FormatClock(end)}
}
