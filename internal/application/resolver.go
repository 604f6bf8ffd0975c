package application

import "time"

// resolveOccurrences overlays stored exceptions onto the candidate instants
// produced by rule expansion. Deleted exceptions drop the occurrence; override
// exceptions replace individual fields while nil fields inherit the series
// value. The result keeps the order of the candidate instants.
func resolveOccurrences(series Series, candidates []time.Time, exceptions []Exception) []Occurrence {
	byInstant := indexExceptions(exceptions)

	occurrences := make([]Occurrence, 0, len(candidates))
	for _, candidate := range candidates {
		occurrence := Occurrence{
			SeriesID:        series.ID,
			Start:           candidate,
			OriginalStart:   candidate,
			DurationMinutes: series.DurationMinutes,
			Title:           series.Title,
			Link:            series.Link,
			Notes:           series.Notes,
			Location:        series.Location,
			Host:            series.Host,
			EventType:       series.EventType,
			Frequency:       series.Frequency,
		}

		exception, ok := byInstant[candidate.UTC().UnixNano()]
		if ok {
			if exception.Deleted {
				continue
			}
			applyOverrides(&occurrence, exception.Overrides)
			occurrence.IsException = true
		}

		occurrences = append(occurrences, occurrence)
	}

	if len(occurrences) == 0 {
		return nil
	}
	return occurrences
}

// indexExceptions keys exceptions by their occurrence instant. When duplicates
// exist the most recently created record wins, with the ID breaking ties.
func indexExceptions(exceptions []Exception) map[int64]Exception {
	byInstant := make(map[int64]Exception, len(exceptions))
	for _, exception := range exceptions {
		key := exception.OccurrenceStart.UTC().UnixNano()
		existing, ok := byInstant[key]
		if ok && !supersedes(exception, existing) {
			continue
		}
		byInstant[key] = exception
	}
	return byInstant
}

func supersedes(candidate, existing Exception) bool {
	if candidate.CreatedAt.Equal(existing.CreatedAt) {
		return candidate.ID > existing.ID
	}
	return candidate.CreatedAt.After(existing.CreatedAt)
}

func applyOverrides(occurrence *Occurrence, overrides ExceptionOverrides) {
	if overrides.Start != nil {
		occurrence.Start = overrides.Start.UTC()
	}
	if overrides.DurationMinutes != nil {
		occurrence.DurationMinutes = *overrides.DurationMinutes
	}
	if overrides.Title != nil {
		occurrence.Title = *overrides.Title
	}
	if overrides.Link != nil {
		occurrence.Link = *overrides.Link
	}
	if overrides.Notes != nil {
		occurrence.Notes = *overrides.Notes
	}
	if overrides.Location != nil {
		occurrence.Location = *overrides.Location
	}
	if overrides.Host != nil {
		occurrence.Host = *overrides.Host
	}
	if overrides.EventType != nil {
		occurrence.EventType = *overrides.EventType
	}
}
