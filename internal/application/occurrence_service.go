package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/recurring-calendar/internal/overlap"
	"github.com/example/recurring-calendar/internal/persistence"
	"github.com/example/recurring-calendar/internal/recurrence"
)

// ExceptionRepository captures the persistence interactions for exceptions.
type ExceptionRepository interface {
	UpsertException(ctx context.Context, exception Exception) (Exception, error)
	GetException(ctx context.Context, seriesID string, occurrenceStart time.Time) (Exception, error)
	FindExceptionByOverrideStart(ctx context.Context, seriesID string, overrideStart time.Time) (Exception, error)
	ListExceptionsForSeries(ctx context.Context, seriesID string) ([]Exception, error)
}

// OccurrenceService materializes occurrence windows and manages per-occurrence
// exceptions.
type OccurrenceService struct {
	series      SeriesRepository
	exceptions  ExceptionRepository
	cache       *WindowCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewOccurrenceService wires dependencies for occurrence operations.
func NewOccurrenceService(series SeriesRepository, exceptions ExceptionRepository, cache *WindowCache, idGenerator func() string, now func() time.Time) *OccurrenceService {
	return NewOccurrenceServiceWithLogger(series, exceptions, cache, idGenerator, now, nil)
}

// NewOccurrenceServiceWithLogger constructs an occurrence service with a specified logger.
func NewOccurrenceServiceWithLogger(series SeriesRepository, exceptions ExceptionRepository, cache *WindowCache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *OccurrenceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &OccurrenceService{
		series:      series,
		exceptions:  exceptions,
		cache:       cache,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *OccurrenceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "OccurrenceService", operation, attrs...)
}

// Materialize expands every active series inside the half-open window,
// overlays stored exceptions, and returns the merged occurrence list ordered
// by resolved start. A failure expanding any single series fails the whole
// request rather than returning a partial window.
func (s *OccurrenceService) Materialize(ctx context.Context, params MaterializeParams) (result MaterializeResult, err error) {
	if s == nil {
		err = fmt.Errorf("OccurrenceService is nil")
		return
	}
	if s.series == nil || s.exceptions == nil {
		err = fmt.Errorf("occurrence repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "Materialize",
		"window_start", params.WindowStart.UTC().Format(time.RFC3339),
		"window_end", params.WindowEnd.UTC().Format(time.RFC3339),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to materialize window", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("occurrences", len(result.Occurrences)).DebugContext(ctx, "window materialized")
	}()

	windowStart := params.WindowStart.UTC()
	windowEnd := params.WindowEnd.UTC()
	if windowStart.After(windowEnd) {
		err = fmt.Errorf("%w: window start %s is after window end %s",
			recurrence.ErrInvalidWindow, windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
		return
	}

	cacheKey := buildWindowCacheKey(params)
	if cached, ok := s.cache.Get(cacheKey); ok {
		result = cached
		return
	}

	var listed []Series
	listed, err = s.series.ListActiveSeries(ctx)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = nil
			return
		}
		return
	}

	merged := make([]Occurrence, 0)
	for _, series := range listed {
		var candidates []time.Time
		candidates, err = recurrence.Expand(series.Rule(), windowStart, windowEnd)
		if err != nil {
			err = fmt.Errorf("expanding series %s: %w", series.ID, err)
			return
		}
		if len(candidates) == 0 {
			continue
		}

		var stored []Exception
		stored, err = s.exceptions.ListExceptionsForSeries(ctx, series.ID)
		if err != nil {
			return
		}

		merged = append(merged, resolveOccurrences(series, candidates, stored)...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Start.Equal(merged[j].Start) {
			return merged[i].SeriesID < merged[j].SeriesID
		}
		return merged[i].Start.Before(merged[j].Start)
	})

	location := params.Location
	if location == nil {
		location = time.UTC
	}
	for i := range merged {
		merged[i].LocalStart = merged[i].Start.In(location)
	}

	result = MaterializeResult{
		Occurrences: merged,
		Warnings:    detectOverlaps(merged),
	}
	s.cache.Store(cacheKey, result)
	return
}

// UpsertException creates or replaces the exception keyed by the occurrence's
// original instant. Re-submitting the key overwrites the previous record and
// clears any deletion flag.
func (s *OccurrenceService) UpsertException(ctx context.Context, params UpsertExceptionParams) (exception Exception, err error) {
	if s == nil {
		err = fmt.Errorf("OccurrenceService is nil")
		return
	}
	if s.series == nil || s.exceptions == nil {
		err = fmt.Errorf("occurrence repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpsertException", "series_id", params.SeriesID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to upsert exception", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("exception_id", exception.ID).InfoContext(ctx, "exception upserted")
	}()

	var series Series
	series, err = s.series.GetSeries(ctx, params.SeriesID)
	if err != nil {
		err = mapSeriesRepoError(err)
		return
	}

	occurrenceStart := params.OccurrenceStart.UTC().Truncate(time.Second)

	var member bool
	member, err = recurrence.Contains(series.Rule(), occurrenceStart)
	if err != nil {
		return
	}
	if !member {
		vErr := &ValidationError{}
		vErr.add("occurrence_start_utc", "does not match any occurrence of the series")
		err = vErr
		return
	}

	overrides := normalizeOverrides(params.Overrides)

	vErr := &ValidationError{}
	validateOverrides(overrides, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	candidate := Exception{
		ID:              s.idGenerator(),
		SeriesID:        series.ID,
		OccurrenceStart: occurrenceStart,
		Deleted:         false,
		Overrides:       overrides,
		CreatedAt:       s.now().UTC(),
	}

	var persisted Exception
	persisted, err = s.exceptions.UpsertException(ctx, candidate)
	if err != nil {
		err = mapExceptionRepoError(err)
		return
	}

	s.cache.Invalidate()
	exception = persisted
	return
}

// DeleteOccurrence cancels a single occurrence by recording a deletion
// exception. The supplied instant may be either the original occurrence
// instant or the overridden start of an already-moved occurrence.
func (s *OccurrenceService) DeleteOccurrence(ctx context.Context, params DeleteOccurrenceParams) (err error) {
	if s == nil {
		return fmt.Errorf("OccurrenceService is nil")
	}
	if s.series == nil || s.exceptions == nil {
		return fmt.Errorf("occurrence repositories not configured")
	}

	logger := s.loggerWith(ctx, "DeleteOccurrence", "series_id", params.SeriesID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete occurrence", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "occurrence deleted")
	}()

	var series Series
	series, err = s.series.GetSeries(ctx, params.SeriesID)
	if err != nil {
		err = mapSeriesRepoError(err)
		return
	}

	occurrenceStart := params.OccurrenceStart.UTC().Truncate(time.Second)

	existing, lookupErr := s.exceptions.GetException(ctx, series.ID, occurrenceStart)
	switch {
	case lookupErr == nil:
		existing.Deleted = true
		if _, err = s.exceptions.UpsertException(ctx, existing); err != nil {
			err = mapExceptionRepoError(err)
			return
		}
		s.cache.Invalidate()
		return nil
	case !errors.Is(lookupErr, persistence.ErrNotFound):
		err = lookupErr
		return
	}

	// The caller may be pointing at a moved occurrence by its displayed
	// time. Fall back to the exception whose override start matches.
	moved, lookupErr := s.exceptions.FindExceptionByOverrideStart(ctx, series.ID, occurrenceStart)
	switch {
	case lookupErr == nil:
		moved.Deleted = true
		if _, err = s.exceptions.UpsertException(ctx, moved); err != nil {
			err = mapExceptionRepoError(err)
			return
		}
		s.cache.Invalidate()
		return nil
	case !errors.Is(lookupErr, persistence.ErrNotFound):
		err = lookupErr
		return
	}

	var member bool
	member, err = recurrence.Contains(series.Rule(), occurrenceStart)
	if err != nil {
		return
	}
	if !member {
		vErr := &ValidationError{}
		vErr.add("occurrence_start_utc", "does not match any occurrence of the series")
		err = vErr
		return
	}

	deletion := Exception{
		ID:              s.idGenerator(),
		SeriesID:        series.ID,
		OccurrenceStart: occurrenceStart,
		Deleted:         true,
		CreatedAt:       s.now().UTC(),
	}
	if _, err = s.exceptions.UpsertException(ctx, deletion); err != nil {
		err = mapExceptionRepoError(err)
		return
	}

	s.cache.Invalidate()
	return nil
}

func detectOverlaps(occurrences []Occurrence) []OverlapWarning {
	if len(occurrences) <= 1 {
		return nil
	}

	intervals := make([]overlap.Interval, 0, len(occurrences))
	for _, occurrence := range occurrences {
		intervals = append(intervals, overlap.Interval{
			SeriesID: occurrence.SeriesID,
			Start:    occurrence.Start,
			End:      occurrence.End(),
		})
	}

	detected := overlap.Detect(intervals)
	if len(detected) == 0 {
		return nil
	}

	warnings := make([]OverlapWarning, 0, len(detected))
	for _, warning := range detected {
		warnings = append(warnings, OverlapWarning{
			SeriesID:     warning.SeriesID,
			WithSeriesID: warning.WithSeriesID,
			Start:        warning.Start,
		})
	}
	return warnings
}

func normalizeOverrides(overrides ExceptionOverrides) ExceptionOverrides {
	if overrides.Start != nil {
		start := overrides.Start.UTC().Truncate(time.Second)
		overrides.Start = &start
	}
	return overrides
}

func validateOverrides(overrides ExceptionOverrides, vErr *ValidationError) {
	if overrides.DurationMinutes != nil && *overrides.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}
	if overrides.EventType != nil {
		if _, err := ParseEventType(string(*overrides.EventType)); err != nil {
			vErr.add("event_type", err.Error())
		}
	}
}

func mapExceptionRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("duration_minutes", "duration must be positive")
		return vErr
	}
	return err
}
