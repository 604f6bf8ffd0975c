// Package tz centralizes the timezone arithmetic of the calendar core:
// UTC/local conversions and the Monday-start week windows used to bound
// occurrence queries.
package tz

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTimezone indicates the supplied IANA zone name could not be loaded.
var ErrUnknownTimezone = errors.New("tz: unknown timezone")

// Load resolves an IANA timezone name, wrapping lookup failures in
// ErrUnknownTimezone so callers can map them to a validation response.
func Load(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	return loc, nil
}

// UTCToLocal converts an instant to wall-clock time in loc. A nil location
// leaves the instant in UTC.
func UTCToLocal(instant time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return instant.UTC()
	}
	return instant.In(loc)
}

// LocalToUTC interprets wall-clock components in loc and returns the UTC
// instant.
//
// Wall-clock times inside a DST spring-forward gap do not exist; they are
// normalized forward past the gap. Times repeated during a fall-back overlap
// are ambiguous; the runtime resolves them to one fixed offset. Both cases
// are deterministic: the same input always produces the same instant.
func LocalToUTC(year int, month time.Month, day, hour, minute, second int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(year, month, day, hour, minute, second, 0, loc).UTC()
}

// WeekStart returns Monday 00:00:00.000 of the week containing t, computed in
// loc's calendar.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	// Monday == 1 in Go, Sunday == 0; shift Sunday to the end of the week.
	offset := (int(midnight.Weekday()) + 6) % 7
	return midnight.AddDate(0, 0, -offset)
}

// WeekEnd returns Sunday 23:59:59.999 of the week containing t, computed in
// loc's calendar. It is the inclusive display boundary; window queries use
// WeekWindow's exclusive edge instead.
func WeekEnd(t time.Time, loc *time.Location) time.Time {
	return WeekStart(t, loc).AddDate(0, 0, 7).Add(-time.Millisecond)
}

// WeekWindow returns the UTC half-open window [Monday 00:00, next Monday
// 00:00) of the week containing t in loc. AddDate walks calendar days, so the
// window is 167 or 169 hours long on DST transition weeks rather than a flat
// 168.
func WeekWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := WeekStart(t, loc)
	return start.UTC(), start.AddDate(0, 0, 7).UTC()
}
