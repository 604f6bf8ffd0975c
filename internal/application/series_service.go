package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/example/recurring-calendar/internal/persistence"
	"github.com/example/recurring-calendar/internal/recurrence"
)

// SeriesRepository captures the persistence interactions needed by the service.
type SeriesRepository interface {
	CreateSeries(ctx context.Context, series Series) (Series, error)
	GetSeries(ctx context.Context, id string) (Series, error)
	UpdateSeries(ctx context.Context, series Series) (Series, error)
	SoftDeleteSeries(ctx context.Context, id string) error
	ListActiveSeries(ctx context.Context) ([]Series, error)
	SplitSeries(ctx context.Context, truncated, created Series, pivot time.Time) error
}

// SeriesService orchestrates validation and persistence for series operations.
type SeriesService struct {
	series      SeriesRepository
	cache       *WindowCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSeriesService wires dependencies for series operations.
func NewSeriesService(series SeriesRepository, cache *WindowCache, idGenerator func() string, now func() time.Time) *SeriesService {
	return NewSeriesServiceWithLogger(series, cache, idGenerator, now, nil)
}

// NewSeriesServiceWithLogger constructs a series service with a specified logger.
func NewSeriesServiceWithLogger(series SeriesRepository, cache *WindowCache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SeriesService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SeriesService{series: series, cache: cache, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *SeriesService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SeriesService", operation, attrs...)
}

// CreateSeries validates the request before delegating to persistence.
func (s *SeriesService) CreateSeries(ctx context.Context, input SeriesInput) (series Series, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSeries")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("series_id", series.ID).InfoContext(ctx, "series created")
	}()

	input = normalizeSeriesInput(input)

	vErr := &ValidationError{}
	validateSeriesCore(input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now().UTC()
	series = seriesFromInput(input)
	series.ID = s.idGenerator()
	series.CreatedAt = createdAt
	series.UpdatedAt = createdAt

	if s.series == nil {
		return
	}

	var persisted Series
	persisted, err = s.series.CreateSeries(ctx, series)
	if err != nil {
		err = mapSeriesRepoError(err)
		return
	}

	s.cache.Invalidate()
	series = persisted
	return
}

// GetSeries fetches one series by identity.
func (s *SeriesService) GetSeries(ctx context.Context, id string) (Series, error) {
	if s == nil {
		return Series{}, fmt.Errorf("SeriesService is nil")
	}
	if s.series == nil {
		return Series{}, fmt.Errorf("series repository not configured")
	}

	series, err := s.series.GetSeries(ctx, id)
	if err != nil {
		return Series{}, mapSeriesRepoError(err)
	}
	return series, nil
}

// ListSeries enumerates the active (not soft-deleted) series ordered by start.
func (s *SeriesService) ListSeries(ctx context.Context) ([]Series, error) {
	if s == nil {
		return nil, fmt.Errorf("SeriesService is nil")
	}
	if s.series == nil {
		return nil, fmt.Errorf("series repository not configured")
	}

	listed, err := s.series.ListActiveSeries(ctx)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	ordered := make([]Series, len(listed))
	copy(ordered, listed)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Start.Before(ordered[j].Start)
	})

	return ordered, nil
}

// UpdateSeries applies a full field update to an existing series.
func (s *SeriesService) UpdateSeries(ctx context.Context, id string, input SeriesInput) (series Series, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}
	if s.series == nil {
		err = fmt.Errorf("series repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSeries", "series_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "series updated")
	}()

	var existing Series
	existing, err = s.series.GetSeries(ctx, id)
	if err != nil {
		err = mapSeriesRepoError(err)
		return
	}

	input = normalizeSeriesInput(input)

	vErr := &ValidationError{}
	validateSeriesCore(input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := seriesFromInput(input)
	updated.ID = existing.ID
	updated.IsDeleted = existing.IsDeleted
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now().UTC()

	var persisted Series
	persisted, err = s.series.UpdateSeries(ctx, updated)
	if err != nil {
		err = mapSeriesRepoError(err)
		return
	}

	s.cache.Invalidate()
	series = persisted
	return
}

// DeleteSeries marks a series deleted. Its occurrences disappear from
// materialized windows immediately; the record itself is purged later.
func (s *SeriesService) DeleteSeries(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("SeriesService is nil")
	}
	if s.series == nil {
		return fmt.Errorf("series repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteSeries", "series_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "series deleted")
	}()

	if err = s.series.SoftDeleteSeries(ctx, id); err != nil {
		err = mapSeriesRepoError(err)
		return
	}

	s.cache.Invalidate()
	return nil
}

// SplitSeries truncates a series at the pivot occurrence and creates a new
// series carrying the future occurrences. Exceptions at or after the pivot
// move to the new series; both writes commit atomically.
func (s *SeriesService) SplitSeries(ctx context.Context, params SplitParams) (result SplitResult, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}
	if s.series == nil {
		err = fmt.Errorf("series repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SplitSeries", "series_id", params.SeriesID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to split series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("new_series_id", result.Created.ID).InfoContext(ctx, "series split")
	}()

	var original Series
	original, err = s.series.GetSeries(ctx, params.SeriesID)
	if err != nil {
		err = mapSeriesRepoError(err)
		return
	}

	if !original.Frequency.Recurring() {
		vErr := &ValidationError{}
		vErr.add("frequency", "a one-off series cannot be split")
		err = vErr
		return
	}

	pivot := params.Pivot.UTC().Truncate(time.Second)

	var member bool
	member, err = recurrence.Contains(original.Rule(), pivot)
	if err != nil {
		return
	}
	if !member {
		err = ErrPivotNotInSeries
		return
	}

	now := s.now().UTC()

	truncated := original
	truncated.Until = &pivot
	truncated.UpdatedAt = now

	created := original
	created.ID = s.idGenerator()
	created.Start = pivot
	created.Until = original.Until
	created.CreatedAt = now
	created.UpdatedAt = now
	applySeriesUpdates(&created, params.Updates)

	vErr := &ValidationError{}
	validateSeriesCore(SeriesInput{
		Title:           created.Title,
		Start:           created.Start,
		DurationMinutes: created.DurationMinutes,
		Frequency:       created.Frequency,
		Interval:        created.Interval,
		Weekdays:        created.Weekdays,
		Until:           created.Until,
		Link:            created.Link,
		Notes:           created.Notes,
		Location:        created.Location,
		Host:            created.Host,
		EventType:       created.EventType,
	}, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.series.SplitSeries(ctx, truncated, created, pivot); err != nil {
		err = mapSeriesRepoError(err)
		return
	}

	s.cache.Invalidate()
	result = SplitResult{Truncated: truncated, Created: created}
	return
}

func seriesFromInput(input SeriesInput) Series {
	return Series{
		Title:           strings.TrimSpace(input.Title),
		Start:           input.Start,
		DurationMinutes: input.DurationMinutes,
		Frequency:       input.Frequency,
		Interval:        input.Interval,
		Weekdays:        input.Weekdays,
		Until:           input.Until,
		Link:            strings.TrimSpace(input.Link),
		Notes:           input.Notes,
		Location:        strings.TrimSpace(input.Location),
		Host:            strings.TrimSpace(input.Host),
		EventType:       input.EventType,
	}
}

func applySeriesUpdates(series *Series, updates SeriesUpdates) {
	if updates.Title != nil {
		series.Title = strings.TrimSpace(*updates.Title)
	}
	if updates.DurationMinutes != nil {
		series.DurationMinutes = *updates.DurationMinutes
	}
	if updates.Link != nil {
		series.Link = strings.TrimSpace(*updates.Link)
	}
	if updates.Notes != nil {
		series.Notes = *updates.Notes
	}
	if updates.Location != nil {
		series.Location = strings.TrimSpace(*updates.Location)
	}
	if updates.Host != nil {
		series.Host = strings.TrimSpace(*updates.Host)
	}
	if updates.EventType != nil {
		series.EventType = *updates.EventType
	}
	if updates.Weekdays != nil {
		series.Weekdays = normalizeWeekdays(updates.Weekdays)
	}
	if updates.Interval != nil {
		series.Interval = *updates.Interval
	}
}

// normalizeSeriesInput canonicalizes instants to second-precision UTC and
// fills interval defaults before validation runs.
func normalizeSeriesInput(input SeriesInput) SeriesInput {
	input.Start = input.Start.UTC().Truncate(time.Second)
	if input.Until != nil {
		until := input.Until.UTC().Truncate(time.Second)
		input.Until = &until
	}
	if input.Interval == 0 {
		if input.Frequency == recurrence.FrequencyFortnightly {
			input.Interval = 2
		} else {
			input.Interval = 1
		}
	}
	if input.Frequency == recurrence.FrequencyWorkday {
		input.Interval = 1
	}
	input.Weekdays = normalizeWeekdays(input.Weekdays)
	return input
}

func validateSeriesCore(input SeriesInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}

	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}

	if input.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}

	if !input.Frequency.Valid() {
		vErr.add("frequency", fmt.Sprintf("unknown frequency %q", string(input.Frequency)))
	}

	if input.Interval < 1 {
		vErr.add("interval", "interval must be a positive integer")
	}

	if input.Frequency == recurrence.FrequencyFortnightly && input.Interval != 2 {
		vErr.add("interval", "fortnightly series must use interval 2")
	}

	if _, err := ParseEventType(string(input.EventType)); err != nil {
		vErr.add("event_type", err.Error())
	}

	if input.Until != nil && !input.Start.IsZero() && !input.Until.After(input.Start) {
		vErr.add("until", "until must be after start")
	}

	if input.Link != "" {
		if _, err := url.ParseRequestURI(input.Link); err != nil {
			vErr.add("link", "must be a valid URL")
		}
	}
}

func normalizeWeekdays(weekdays []time.Weekday) []time.Weekday {
	if len(weekdays) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]struct{}, len(weekdays))
	out := make([]time.Weekday, 0, len(weekdays))
	for _, weekday := range weekdays {
		if _, ok := seen[weekday]; ok {
			continue
		}
		seen[weekday] = struct{}{}
		out = append(out, weekday)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func mapSeriesRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("duration_minutes", "duration must be positive")
		return vErr
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("series_id", "related records are missing")
		return vErr
	}
	return err
}
