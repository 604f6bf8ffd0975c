package overlap

import (
	"sort"
	"time"
)

// Interval is one materialized occurrence reduced to the fields overlap
// detection needs.
type Interval struct {
	SeriesID string
	Start    time.Time
	End      time.Time
}

// Warning reports two occurrences that share time on the calendar. Warnings
// are advisory; overlapping occurrences are legal.
type Warning struct {
	SeriesID     string
	WithSeriesID string
	Start        time.Time
}

// Detect finds every pair of intervals that overlap in time. Intervals are
// half-open, so an occurrence starting exactly when another ends does not
// overlap it. The result is ordered by the start of the later interval of
// each pair.
func Detect(intervals []Interval) []Warning {
	if len(intervals) <= 1 {
		return nil
	}

	ordered := make([]Interval, len(intervals))
	copy(ordered, intervals)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].SeriesID < ordered[j].SeriesID
		}
		return ordered[i].Start.Before(ordered[j].Start)
	})

	warnings := make([]Warning, 0)
	for i, candidate := range ordered {
		for j := i - 1; j >= 0; j-- {
			earlier := ordered[j]
			if earlier.End.After(candidate.Start) {
				warnings = append(warnings, Warning{
					SeriesID:     candidate.SeriesID,
					WithSeriesID: earlier.SeriesID,
					Start:        candidate.Start,
				})
			}
		}
	}

	if len(warnings) == 0 {
		return nil
	}
	return warnings
}
