package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/recurring-calendar/internal/persistence"
)

// Storage provides an in-memory persistence layer implementation. It backs
// the test fixtures and is usable as a throwaway store for local development.
type Storage struct {
	mu         sync.RWMutex
	series     map[string]persistence.Series
	exceptions map[string]persistence.Exception
}

// Open returns a new empty Storage instance.
func Open() *Storage {
	return &Storage{
		series:     make(map[string]persistence.Series),
		exceptions: make(map[string]persistence.Exception),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// --- SeriesRepository implementation ---

// CreateSeries stores a new series.
func (s *Storage) CreateSeries(ctx context.Context, series persistence.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.series[series.ID]; ok {
		return persistence.ErrDuplicate
	}

	s.series[series.ID] = cloneSeries(series)
	return nil
}

// UpdateSeries replaces an existing series, preserving its creation time.
func (s *Storage) UpdateSeries(ctx context.Context, series persistence.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.series[series.ID]
	if !ok {
		return persistence.ErrNotFound
	}

	series.CreatedAt = existing.CreatedAt
	s.series[series.ID] = cloneSeries(series)
	return nil
}

// GetSeries retrieves a series by ID.
func (s *Storage) GetSeries(ctx context.Context, id string) (persistence.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[id]
	if !ok {
		return persistence.Series{}, persistence.ErrNotFound
	}

	return cloneSeries(series), nil
}

// ListActiveSeries returns all series not marked deleted, ordered by start.
func (s *Storage) ListActiveSeries(ctx context.Context) ([]persistence.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listed := make([]persistence.Series, 0, len(s.series))
	for _, series := range s.series {
		if series.IsDeleted {
			continue
		}
		listed = append(listed, cloneSeries(series))
	}

	sort.Slice(listed, func(i, j int) bool {
		if listed[i].Start.Equal(listed[j].Start) {
			return listed[i].ID < listed[j].ID
		}
		return listed[i].Start.Before(listed[j].Start)
	})

	return listed, nil
}

// SoftDeleteSeries marks a series deleted without removing its rows.
func (s *Storage) SoftDeleteSeries(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.series[id]
	if !ok {
		return persistence.ErrNotFound
	}

	series.IsDeleted = true
	s.series[id] = series
	return nil
}

// SplitSeries truncates the original series, inserts the new one, and
// re-parents exceptions at or after the pivot. All writes happen under one
// lock so the operation is all-or-nothing.
func (s *Storage) SplitSeries(ctx context.Context, truncated, created persistence.Series, pivot time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.series[truncated.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if _, ok := s.series[created.ID]; ok {
		return persistence.ErrDuplicate
	}

	truncated.CreatedAt = existing.CreatedAt
	s.series[truncated.ID] = cloneSeries(truncated)
	s.series[created.ID] = cloneSeries(created)

	for id, exception := range s.exceptions {
		if exception.SeriesID != truncated.ID {
			continue
		}
		if exception.OccurrenceStart.Before(pivot) {
			continue
		}
		exception.SeriesID = created.ID
		s.exceptions[id] = exception
	}

	return nil
}

// PurgeDeletedSeries removes soft-deleted series last updated before the
// reference instant, along with their exceptions.
func (s *Storage) PurgeDeletedSeries(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, series := range s.series {
		if !series.IsDeleted || !series.UpdatedAt.Before(before) {
			continue
		}
		delete(s.series, id)
		purged++

		for exceptionID, exception := range s.exceptions {
			if exception.SeriesID == id {
				delete(s.exceptions, exceptionID)
			}
		}
	}

	return purged, nil
}

// --- ExceptionRepository implementation ---

// UpsertException creates or replaces the exception keyed by
// (series id, occurrence start).
func (s *Storage) UpsertException(ctx context.Context, exception persistence.Exception) (persistence.Exception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.series[exception.SeriesID]; !ok {
		return persistence.Exception{}, persistence.ErrForeignKeyViolation
	}

	for id, existing := range s.exceptions {
		if existing.SeriesID != exception.SeriesID {
			continue
		}
		if !existing.OccurrenceStart.Equal(exception.OccurrenceStart) {
			continue
		}
		// Replace the fields but keep the stored identity and creation time.
		exception.ID = existing.ID
		exception.CreatedAt = existing.CreatedAt
		s.exceptions[id] = cloneException(exception)
		return cloneException(exception), nil
	}

	s.exceptions[exception.ID] = cloneException(exception)
	return cloneException(exception), nil
}

// GetException retrieves the exception keyed by the original occurrence instant.
func (s *Storage) GetException(ctx context.Context, seriesID string, occurrenceStart time.Time) (persistence.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, exception := range s.exceptions {
		if exception.SeriesID == seriesID && exception.OccurrenceStart.Equal(occurrenceStart) {
			return cloneException(exception), nil
		}
	}

	return persistence.Exception{}, persistence.ErrNotFound
}

// FindExceptionByOverrideStart retrieves the exception whose override start
// matches the given instant.
func (s *Storage) FindExceptionByOverrideStart(ctx context.Context, seriesID string, overrideStart time.Time) (persistence.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, exception := range s.exceptions {
		if exception.SeriesID != seriesID || exception.OverrideStart == nil {
			continue
		}
		if exception.OverrideStart.Equal(overrideStart) {
			return cloneException(exception), nil
		}
	}

	return persistence.Exception{}, persistence.ErrNotFound
}

// ListExceptionsForSeries returns exceptions for a series ordered by the
// occurrence instant they target.
func (s *Storage) ListExceptionsForSeries(ctx context.Context, seriesID string) ([]persistence.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listed := make([]persistence.Exception, 0)
	for _, exception := range s.exceptions {
		if exception.SeriesID != seriesID {
			continue
		}
		listed = append(listed, cloneException(exception))
	}

	sort.Slice(listed, func(i, j int) bool {
		if listed[i].OccurrenceStart.Equal(listed[j].OccurrenceStart) {
			return listed[i].ID < listed[j].ID
		}
		return listed[i].OccurrenceStart.Before(listed[j].OccurrenceStart)
	})

	return listed, nil
}

// DeleteExceptionsForSeries removes all exceptions attached to a series.
func (s *Storage) DeleteExceptionsForSeries(ctx context.Context, seriesID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, exception := range s.exceptions {
		if exception.SeriesID == seriesID {
			delete(s.exceptions, id)
		}
	}

	return nil
}

// --- Helpers ---

func cloneSeries(series persistence.Series) persistence.Series {
	out := series
	if series.Until != nil {
		until := *series.Until
		out.Until = &until
	}
	if len(series.Weekdays) > 0 {
		out.Weekdays = make([]time.Weekday, len(series.Weekdays))
		copy(out.Weekdays, series.Weekdays)
	}
	return out
}

func cloneException(exception persistence.Exception) persistence.Exception {
	out := exception
	out.OverrideStart = cloneTimePtr(exception.OverrideStart)
	out.OverrideDurationMinutes = cloneIntPtr(exception.OverrideDurationMinutes)
	out.OverrideTitle = cloneStringPtr(exception.OverrideTitle)
	out.OverrideLink = cloneStringPtr(exception.OverrideLink)
	out.OverrideNotes = cloneStringPtr(exception.OverrideNotes)
	out.OverrideLocation = cloneStringPtr(exception.OverrideLocation)
	out.OverrideHost = cloneStringPtr(exception.OverrideHost)
	out.OverrideEventType = cloneStringPtr(exception.OverrideEventType)
	return out
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func cloneIntPtr(value *int) *int {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}
