// Package window plans the calendar windows a harvest run has to fetch
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateFormat is the calendar date layout used on the wire and in logs
const DateFormat = "2006-01-02"

const day = 24 * time.Hour

// Define static errors
var (
	// ErrInvalidRange is returned when start >= end or a date cannot be parsed
	ErrInvalidRange = errors.New("invalid range")
	// ErrNoWatermark is returned when no bounds, no watermark and no fallback lookback exist
	ErrNoWatermark = errors.New("no watermark and no explicit range")
	// ErrInvalidPeriod is returned when a period string cannot be parsed
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrInvalidAlign is returned for an unknown alignment mode
	ErrInvalidAlign = errors.New("align must be one of: week, day, none")
)

// Align describes how a derived start date is snapped to its period boundary
type Align string

const (
	// AlignWeek snaps to the Monday of the week
	AlignWeek Align = "week"
	// AlignDay snaps to midnight
	AlignDay Align = "day"
	// AlignNone keeps the date as is
	AlignNone Align = "none"
)

// Validate checks the alignment mode
func (a Align) Validate() error {
	switch a {
	case AlignWeek, AlignDay, AlignNone:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAlign, string(a))
	}
}

// Window is one inclusive calendar period fetched as a unit
type Window struct {
	Start time.Time
	End   time.Time
}

// Timeframe renders the window the way providers expect it: "start end"
func (w Window) Timeframe() string {
	return w.Start.Format(DateFormat) + " " + w.End.Format(DateFormat)
}

func (w Window) String() string {
	return "[" + w.Start.Format(DateFormat) + ".." + w.End.Format(DateFormat) + "]"
}

// ParseDate parses a calendar date, no time of day
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a %s date", ErrInvalidRange, s, DateFormat)
	}

	return t, nil
}

// Midnight truncates t to 00:00 UTC of its calendar day
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns the Monday of t's week at midnight
func StartOfWeek(t time.Time) time.Time {
	t = Midnight(t)
	offset := (int(t.Weekday()) + 6) % 7

	return t.AddDate(0, 0, -offset)
}

// ParsePeriod parses "7d", "1w" or a Go duration that is a whole number of days
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: must not be empty", ErrInvalidPeriod)
	}

	var (
		n    int
		unit = s[len(s)-1]
	)

	switch unit {
	case 'd', 'w':
		if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &n); err != nil {
			return 0, fmt.Errorf("%w %q: %w", ErrInvalidPeriod, s, err)
		}

		if n <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidPeriod, s)
		}

		if unit == 'w' {
			n *= 7
		}

		return time.Duration(n) * day, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidPeriod, s, err)
	}

	if d <= 0 || d%day != 0 {
		return 0, fmt.Errorf("%w: %q must be a positive whole number of days", ErrInvalidPeriod, s)
	}

	return d, nil
}
