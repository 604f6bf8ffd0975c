package recurrence

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxOccurrences bounds a single expansion. Windows that would generate more
// candidate instants than this fail with ErrWindowTooLarge instead of
// producing an unbounded result.
const MaxOccurrences = 10000

var (
	// ErrInvalidFrequency indicates the rule frequency is not supported.
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
	// ErrInvalidWindow indicates the window start falls after the window end.
	ErrInvalidWindow = errors.New("recurrence: window start must not be after window end")
	// ErrWindowTooLarge indicates the expansion guard tripped.
	ErrWindowTooLarge = errors.New("recurrence: window expands to too many occurrences")
)

// Rule describes the recurrence configuration of an event series.
//
// Start anchors both the date and the time-of-day of every occurrence and is
// always interpreted in UTC. Until, when set, is an exclusive upper bound on
// generated instants. Weekdays narrows WEEKLY and FORTNIGHTLY rules; when
// empty the weekday of Start is used. Interval counts days for DAILY and
// weeks for WEEKLY; WORKDAY ignores it and FORTNIGHTLY forces two.
type Rule struct {
	Start     time.Time
	Until     *time.Time
	Frequency Frequency
	Interval  int
	Weekdays  []time.Weekday
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Expand generates the candidate occurrence start instants of rule inside the
// half-open window [windowStart, windowEnd), ascending and duplicate free.
//
// All arithmetic happens on UTC instants with fixed day increments, so a
// DAILY rule keeps the same UTC time-of-day across DST transitions. Instants
// equal to windowEnd or at/after rule.Until are excluded; instants equal to
// windowStart are included.
func Expand(rule Rule, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if windowStart.After(windowEnd) {
		return nil, ErrInvalidWindow
	}
	if !rule.Frequency.Valid() {
		return nil, ErrInvalidFrequency
	}

	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()
	start := rule.Start.UTC().Truncate(time.Second)

	if rule.Frequency == FrequencyNever {
		if inWindow(start, windowStart, windowEnd) && beforeUntil(start, rule.Until) {
			return []time.Time{start}, nil
		}
		return nil, nil
	}

	r, err := rrule.NewRRule(ruleOption(rule, start))
	if err != nil {
		return nil, err
	}

	candidates := r.Between(windowStart, windowEnd, true)
	instants := make([]time.Time, 0, len(candidates))
	for _, candidate := range candidates {
		candidate = candidate.UTC()
		if !candidate.Before(windowEnd) {
			continue
		}
		if !beforeUntil(candidate, rule.Until) {
			continue
		}
		instants = append(instants, candidate)
		if len(instants) > MaxOccurrences {
			return nil, ErrWindowTooLarge
		}
	}

	if len(instants) == 0 {
		return nil, nil
	}
	return instants, nil
}

// Contains reports whether instant is one of the candidate occurrence starts
// the rule generates. Exception keys and split pivots are validated with it.
func Contains(rule Rule, instant time.Time) (bool, error) {
	instant = instant.UTC().Truncate(time.Second)
	if instant.Before(rule.Start.UTC().Truncate(time.Second)) {
		return false, nil
	}
	if !beforeUntil(instant, rule.Until) {
		return false, nil
	}

	instants, err := Expand(rule, instant, instant.Add(time.Second))
	if err != nil {
		return false, err
	}
	for _, candidate := range instants {
		if candidate.Equal(instant) {
			return true, nil
		}
	}
	return false, nil
}

func ruleOption(rule Rule, start time.Time) rrule.ROption {
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	opt := rrule.ROption{
		Dtstart:  start,
		Interval: interval,
	}

	switch rule.Frequency {
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
	case FrequencyWorkday:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 1
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case FrequencyWeekly, FrequencyFortnightly:
		opt.Freq = rrule.WEEKLY
		if rule.Frequency == FrequencyFortnightly {
			opt.Interval = 2
		}
		opt.Byweekday = weekdaySelection(rule.Weekdays, start)
	}

	return opt
}

// weekdaySelection maps the configured weekday set to rrule weekdays, falling
// back to the weekday of the series start when no restriction was stored.
func weekdaySelection(weekdays []time.Weekday, start time.Time) []rrule.Weekday {
	if len(weekdays) == 0 {
		return []rrule.Weekday{rruleWeekdays[start.Weekday()]}
	}

	seen := make(map[time.Weekday]struct{}, len(weekdays))
	selection := make([]rrule.Weekday, 0, len(weekdays))
	for _, day := range weekdays {
		if day < time.Sunday || day > time.Saturday {
			continue
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		selection = append(selection, rruleWeekdays[day])
	}

	if len(selection) == 0 {
		return []rrule.Weekday{rruleWeekdays[start.Weekday()]}
	}
	return selection
}

func inWindow(instant, windowStart, windowEnd time.Time) bool {
	return !instant.Before(windowStart) && instant.Before(windowEnd)
}

func beforeUntil(instant time.Time, until *time.Time) bool {
	if until == nil {
		return true
	}
	return instant.Before(until.UTC())
}
