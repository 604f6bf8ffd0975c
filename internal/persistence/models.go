package persistence

import "time"

// Series represents a recurring event series stored in persistence.
type Series struct {
	ID              string
	Title           string
	Start           time.Time
	DurationMinutes int
	Frequency       string
	Interval        int
	Weekdays        []time.Weekday
	Until           *time.Time
	Link            string
	Notes           string
	Location        string
	Host            string
	EventType       string
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Exception represents a stored per-occurrence override or deletion.
// OccurrenceStart is the original instant the exception targets; it stays
// stable even when OverrideStart moves the displayed time.
type Exception struct {
	ID                      string
	SeriesID                string
	OccurrenceStart         time.Time
	Deleted                 bool
	OverrideStart           *time.Time
	OverrideDurationMinutes *int
	OverrideTitle           *string
	OverrideLink            *string
	OverrideNotes           *string
	OverrideLocation        *string
	OverrideHost            *string
	OverrideEventType       *string
	CreatedAt               time.Time
}
