package application

import (
	"fmt"
	"time"

	"github.com/example/recurring-calendar/internal/recurrence"
)

// EventType classifies an event series for display purposes.
type EventType string

const (
	// EventTypeMeeting marks a regular meeting series.
	EventTypeMeeting EventType = "Meeting"
	// EventTypeFirst marks a first-of-period ceremony.
	EventTypeFirst EventType = "1st"
	// EventTypePresentation marks a presentation slot.
	EventTypePresentation EventType = "Presentation"
	// EventTypeEvent marks a general event.
	EventTypeEvent EventType = "Event"
)

// ParseEventType validates a caller supplied event type.
func ParseEventType(value string) (EventType, error) {
	switch EventType(value) {
	case EventTypeMeeting, EventTypeFirst, EventTypePresentation, EventTypeEvent:
		return EventType(value), nil
	default:
		return "", fmt.Errorf("unknown event type %q", value)
	}
}

// SeriesInput captures caller provided series fields.
type SeriesInput struct {
	Title           string
	Start           time.Time
	DurationMinutes int
	Frequency       recurrence.Frequency
	Interval        int
	Weekdays        []time.Weekday
	Until           *time.Time
	Link            string
	Notes           string
	Location        string
	Host            string
	EventType       EventType
}

// Series represents a persisted recurring event series.
type Series struct {
	ID              string
	Title           string
	Start           time.Time
	DurationMinutes int
	Frequency       recurrence.Frequency
	Interval        int
	Weekdays        []time.Weekday
	Until           *time.Time
	Link            string
	Notes           string
	Location        string
	Host            string
	EventType       EventType
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Rule derives the recurrence rule governing the series.
func (s Series) Rule() recurrence.Rule {
	return recurrence.Rule{
		Start:     s.Start,
		Until:     s.Until,
		Frequency: s.Frequency,
		Interval:  s.Interval,
		Weekdays:  s.Weekdays,
	}
}

// ExceptionOverrides holds the per-field overrides an exception may carry.
// Nil fields inherit the series value.
type ExceptionOverrides struct {
	Start           *time.Time
	DurationMinutes *int
	Title           *string
	Link            *string
	Notes           *string
	Location        *string
	Host            *string
	EventType       *EventType
}

// Exception represents a stored deviation for a single occurrence of a series.
type Exception struct {
	ID              string
	SeriesID        string
	OccurrenceStart time.Time
	Deleted         bool
	Overrides       ExceptionOverrides
	CreatedAt       time.Time
}

// Occurrence is a materialized instance of a series inside a query window.
type Occurrence struct {
	SeriesID        string
	Start           time.Time
	OriginalStart   time.Time
	DurationMinutes int
	Title           string
	Link            string
	Notes           string
	Location        string
	Host            string
	EventType       EventType
	Frequency       recurrence.Frequency
	IsException     bool
	LocalStart      time.Time
}

// End returns the exclusive end instant of the occurrence.
func (o Occurrence) End() time.Time {
	return o.Start.Add(time.Duration(o.DurationMinutes) * time.Minute)
}

// OverlapWarning flags two occurrences whose time ranges intersect.
type OverlapWarning struct {
	SeriesID     string
	WithSeriesID string
	Start        time.Time
}

// MaterializeParams wraps the data required to materialize occurrences.
type MaterializeParams struct {
	WindowStart  time.Time
	WindowEnd    time.Time
	Location     *time.Location
	TimezoneName string
}

// MaterializeResult carries the resolved occurrences plus overlap warnings.
type MaterializeResult struct {
	Occurrences []Occurrence
	Warnings    []OverlapWarning
}

// UpsertExceptionParams wraps the data required to create or replace an exception.
type UpsertExceptionParams struct {
	SeriesID        string
	OccurrenceStart time.Time
	Overrides       ExceptionOverrides
}

// DeleteOccurrenceParams wraps the data required to cancel a single occurrence.
type DeleteOccurrenceParams struct {
	SeriesID        string
	OccurrenceStart time.Time
}

// SeriesUpdates holds the optional field changes applied to the tail series
// produced by a split. Nil fields carry the original value forward.
type SeriesUpdates struct {
	Title           *string
	DurationMinutes *int
	Link            *string
	Notes           *string
	Location        *string
	Host            *string
	EventType       *EventType
	Weekdays        []time.Weekday
	Interval        *int
}

// SplitParams wraps the data required to split a series at a pivot occurrence.
type SplitParams struct {
	SeriesID string
	Pivot    time.Time
	Updates  SeriesUpdates
}

// SplitResult carries both halves produced by a series split.
type SplitResult struct {
	Truncated Series
	Created   Series
}
