package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/recurring-calendar/internal/application"
	"github.com/example/recurring-calendar/internal/persistence"
	"github.com/example/recurring-calendar/internal/recurrence"
)

var (
	seriesCounter    uint64
	exceptionCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Series fixtures ---------------------------

// SeriesFixture represents a deterministic series record that can be
// materialised for application or persistence tests.
type SeriesFixture struct {
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
	EventType       application.EventType
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SeriesOption configures the generated series fixture.
type SeriesOption func(*SeriesFixture)

// NewSeriesFixture returns a deterministic series fixture with optional overrides.
func NewSeriesFixture(opts ...SeriesOption) SeriesFixture {
	idx := atomic.AddUint64(&seriesCounter, 1)
	id := fmt.Sprintf("series-%03d", idx)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := SeriesFixture{
		ID:              id,
		Title:           fmt.Sprintf("Series %03d", idx),
		Start:           start,
		DurationMinutes: 60,
		Frequency:       recurrence.FrequencyWeekly,
		Interval:        1,
		Weekdays:        []time.Weekday{start.Weekday()},
		EventType:       application.EventTypeMeeting,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSeriesID overrides the generated series ID.
func WithSeriesID(id string) SeriesOption {
	return func(f *SeriesFixture) {
		f.ID = id
	}
}

// WithSeriesTitle overrides the generated title.
func WithSeriesTitle(title string) SeriesOption {
	return func(f *SeriesFixture) {
		f.Title = title
	}
}

// WithSeriesStart sets the first occurrence instant.
func WithSeriesStart(start time.Time) SeriesOption {
	return func(f *SeriesFixture) {
		f.Start = start
	}
}

// WithSeriesDuration sets the occurrence duration in minutes.
func WithSeriesDuration(minutes int) SeriesOption {
	return func(f *SeriesFixture) {
		f.DurationMinutes = minutes
	}
}

// WithSeriesFrequency sets the repetition pattern and interval.
func WithSeriesFrequency(frequency recurrence.Frequency, interval int) SeriesOption {
	return func(f *SeriesFixture) {
		f.Frequency = frequency
		f.Interval = interval
	}
}

// WithSeriesWeekdays sets the weekdays a weekly series repeats on.
func WithSeriesWeekdays(days ...time.Weekday) SeriesOption {
	return func(f *SeriesFixture) {
		f.Weekdays = append([]time.Weekday(nil), days...)
	}
}

// WithSeriesUntil sets the exclusive end bound of the series.
func WithSeriesUntil(t time.Time) SeriesOption {
	return func(f *SeriesFixture) {
		until := t
		f.Until = &until
	}
}

// WithoutSeriesUntil clears any end bound on the fixture.
func WithoutSeriesUntil() SeriesOption {
	return func(f *SeriesFixture) {
		f.Until = nil
	}
}

// WithSeriesLink sets the meeting link.
func WithSeriesLink(link string) SeriesOption {
	return func(f *SeriesFixture) {
		f.Link = link
	}
}

// WithSeriesNotes sets the notes field.
func WithSeriesNotes(notes string) SeriesOption {
	return func(f *SeriesFixture) {
		f.Notes = notes
	}
}

// WithSeriesLocation sets the location field.
func WithSeriesLocation(location string) SeriesOption {
	return func(f *SeriesFixture) {
		f.Location = location
	}
}

// WithSeriesHost sets the host field.
func WithSeriesHost(host string) SeriesOption {
	return func(f *SeriesFixture) {
		f.Host = host
	}
}

// WithSeriesEventType sets the event type.
func WithSeriesEventType(eventType application.EventType) SeriesOption {
	return func(f *SeriesFixture) {
		f.EventType = eventType
	}
}

// WithSeriesDeleted marks the fixture as soft deleted.
func WithSeriesDeleted() SeriesOption {
	return func(f *SeriesFixture) {
		f.IsDeleted = true
	}
}

// WithSeriesTimestamps sets both created and updated timestamps.
func WithSeriesTimestamps(created, updated time.Time) SeriesOption {
	return func(f *SeriesFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application returns the fixture as an application.Series value.
func (f SeriesFixture) Application() application.Series {
	return application.Series{
		ID:              f.ID,
		Title:           f.Title,
		Start:           f.Start,
		DurationMinutes: f.DurationMinutes,
		Frequency:       f.Frequency,
		Interval:        f.Interval,
		Weekdays:        append([]time.Weekday(nil), f.Weekdays...),
		Until:           copyTimePtr(f.Until),
		Link:            f.Link,
		Notes:           f.Notes,
		Location:        f.Location,
		Host:            f.Host,
		EventType:       f.EventType,
		IsDeleted:       f.IsDeleted,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.Series value.
func (f SeriesFixture) Persistence() persistence.Series {
	return persistence.Series{
		ID:              f.ID,
		Title:           f.Title,
		Start:           f.Start,
		DurationMinutes: f.DurationMinutes,
		Frequency:       string(f.Frequency),
		Interval:        f.Interval,
		Weekdays:        append([]time.Weekday(nil), f.Weekdays...),
		Until:           copyTimePtr(f.Until),
		Link:            f.Link,
		Notes:           f.Notes,
		Location:        f.Location,
		Host:            f.Host,
		EventType:       string(f.EventType),
		IsDeleted:       f.IsDeleted,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

// Input returns the fixture as an application.SeriesInput.
func (f SeriesFixture) Input() application.SeriesInput {
	return application.SeriesInput{
		Title:           f.Title,
		Start:           f.Start,
		DurationMinutes: f.DurationMinutes,
		Frequency:       f.Frequency,
		Interval:        f.Interval,
		Weekdays:        append([]time.Weekday(nil), f.Weekdays...),
		Until:           copyTimePtr(f.Until),
		Link:            f.Link,
		Notes:           f.Notes,
		Location:        f.Location,
		Host:            f.Host,
		EventType:       f.EventType,
	}
}

// --------------------------- Exception fixtures --------------------------

// ExceptionFixture represents a deterministic per-occurrence exception.
type ExceptionFixture struct {
	ID              string
	SeriesID        string
	OccurrenceStart time.Time
	Deleted         bool
	Overrides       application.ExceptionOverrides
	CreatedAt       time.Time
}

// ExceptionOption configures the generated exception fixture.
type ExceptionOption func(*ExceptionFixture)

// NewExceptionFixture returns a deterministic exception fixture with optional overrides.
func NewExceptionFixture(opts ...ExceptionOption) ExceptionFixture {
	idx := atomic.AddUint64(&exceptionCounter, 1)
	fixture := ExceptionFixture{
		ID:              fmt.Sprintf("exception-%03d", idx),
		SeriesID:        fmt.Sprintf("series-%03d", idx),
		OccurrenceStart: referenceTime.Add(time.Duration(idx) * time.Hour),
		CreatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithExceptionID overrides the exception ID.
func WithExceptionID(id string) ExceptionOption {
	return func(f *ExceptionFixture) {
		f.ID = id
	}
}

// WithExceptionSeriesID sets the owning series ID.
func WithExceptionSeriesID(id string) ExceptionOption {
	return func(f *ExceptionFixture) {
		f.SeriesID = id
	}
}

// WithExceptionOccurrenceStart sets the original slot the exception targets.
func WithExceptionOccurrenceStart(t time.Time) ExceptionOption {
	return func(f *ExceptionFixture) {
		f.OccurrenceStart = t
	}
}

// WithExceptionDeleted marks the targeted occurrence as cancelled.
func WithExceptionDeleted() ExceptionOption {
	return func(f *ExceptionFixture) {
		f.Deleted = true
	}
}

// WithExceptionOverrides sets the field overrides carried by the exception.
func WithExceptionOverrides(overrides application.ExceptionOverrides) ExceptionOption {
	return func(f *ExceptionFixture) {
		f.Overrides = overrides
	}
}

// WithExceptionCreatedAt sets the created timestamp.
func WithExceptionCreatedAt(t time.Time) ExceptionOption {
	return func(f *ExceptionFixture) {
		f.CreatedAt = t
	}
}

// Application returns the fixture as an application.Exception value.
func (f ExceptionFixture) Application() application.Exception {
	return application.Exception{
		ID:              f.ID,
		SeriesID:        f.SeriesID,
		OccurrenceStart: f.OccurrenceStart,
		Deleted:         f.Deleted,
		Overrides:       f.Overrides,
		CreatedAt:       f.CreatedAt,
	}
}

// Persistence returns the fixture as a persistence.Exception value.
func (f ExceptionFixture) Persistence() persistence.Exception {
	record := persistence.Exception{
		ID:                      f.ID,
		SeriesID:                f.SeriesID,
		OccurrenceStart:         f.OccurrenceStart,
		Deleted:                 f.Deleted,
		OverrideStart:           copyTimePtr(f.Overrides.Start),
		OverrideDurationMinutes: copyIntPtr(f.Overrides.DurationMinutes),
		OverrideTitle:           copyStringPtr(f.Overrides.Title),
		OverrideLink:            copyStringPtr(f.Overrides.Link),
		OverrideNotes:           copyStringPtr(f.Overrides.Notes),
		OverrideLocation:        copyStringPtr(f.Overrides.Location),
		OverrideHost:            copyStringPtr(f.Overrides.Host),
		CreatedAt:               f.CreatedAt,
	}
	if f.Overrides.EventType != nil {
		eventType := string(*f.Overrides.EventType)
		record.OverrideEventType = &eventType
	}
	return record
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyIntPtr(src *int) *int {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
