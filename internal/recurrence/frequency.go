package recurrence

import "fmt"

// Frequency identifies the repetition pattern of an event series.
type Frequency string

const (
	// FrequencyNever marks a single, non-repeating event.
	FrequencyNever Frequency = "NEVER"
	// FrequencyDaily repeats every `interval` calendar days.
	FrequencyDaily Frequency = "DAILY"
	// FrequencyWorkday repeats Monday through Friday; interval is ignored.
	FrequencyWorkday Frequency = "WORKDAY"
	// FrequencyWeekly repeats every `interval` weeks on the selected weekdays.
	FrequencyWeekly Frequency = "WEEKLY"
	// FrequencyFortnightly is weekly repetition with a fixed two week interval.
	FrequencyFortnightly Frequency = "FORTNIGHTLY"
)

// ParseFrequency validates a wire value and returns the matching Frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch Frequency(value) {
	case FrequencyNever, FrequencyDaily, FrequencyWorkday, FrequencyWeekly, FrequencyFortnightly:
		return Frequency(value), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
}

// Valid reports whether the frequency is one of the supported values.
func (f Frequency) Valid() bool {
	_, err := ParseFrequency(string(f))
	return err == nil
}

// Recurring reports whether the frequency expands to more than one occurrence.
func (f Frequency) Recurring() bool {
	return f.Valid() && f != FrequencyNever
}
