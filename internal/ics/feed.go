// Package ics renders materialized occurrences as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/example/recurring-calendar/internal/application"
)

const productID = "-//recurring-calendar//EN"

// Encoder writes occurrence windows as RFC 5545 calendars. Each occurrence
// becomes its own VEVENT; recurrence is already expanded server-side, so the
// feed never carries RRULE properties.
type Encoder struct {
	now func() time.Time
}

func NewEncoder(now func() time.Time) *Encoder {
	if now == nil {
		now = time.Now
	}
	return &Encoder{now: now}
}

func (e *Encoder) Encode(w io.Writer, occurrences []application.Occurrence) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	stamp := e.now().UTC()
	for _, occurrence := range occurrences {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, occurrenceUID(occurrence))
		vevent.Props.SetText(ical.PropSummary, occurrence.Title)
		if occurrence.Notes != "" {
			vevent.Props.SetText(ical.PropDescription, occurrence.Notes)
		}
		if occurrence.Location != "" {
			vevent.Props.SetText(ical.PropLocation, occurrence.Location)
		}
		if occurrence.Link != "" {
			vevent.Props.SetText(ical.PropURL, occurrence.Link)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStart, occurrence.Start.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, occurrence.End().UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		cal.Children = append(cal.Children, vevent.Component)
	}

	return ical.NewEncoder(w).Encode(cal)
}

// occurrenceUID derives a stable identifier from the series and the slot the
// occurrence originally occupied, so moved occurrences keep their UID.
func occurrenceUID(occurrence application.Occurrence) string {
	return fmt.Sprintf("%s-%d@recurring-calendar", occurrence.SeriesID, occurrence.OriginalStart.UTC().Unix())
}
