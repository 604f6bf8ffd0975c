package main

import (
	"context"
	"time"

	"github.com/example/recurring-calendar/internal/application"
	"github.com/example/recurring-calendar/internal/persistence"
	"github.com/example/recurring-calendar/internal/recurrence"
)

type seriesRepositoryAdapter struct {
	repo persistence.SeriesRepository
}

func newSeriesRepositoryAdapter(repo persistence.SeriesRepository) *seriesRepositoryAdapter {
	return &seriesRepositoryAdapter{repo: repo}
}

func (a *seriesRepositoryAdapter) CreateSeries(ctx context.Context, series application.Series) (application.Series, error) {
	if err := a.repo.CreateSeries(ctx, toPersistenceSeries(series)); err != nil {
		return application.Series{}, err
	}
	stored, err := a.repo.GetSeries(ctx, series.ID)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(stored), nil
}

func (a *seriesRepositoryAdapter) GetSeries(ctx context.Context, id string) (application.Series, error) {
	stored, err := a.repo.GetSeries(ctx, id)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(stored), nil
}

func (a *seriesRepositoryAdapter) UpdateSeries(ctx context.Context, series application.Series) (application.Series, error) {
	if err := a.repo.UpdateSeries(ctx, toPersistenceSeries(series)); err != nil {
		return application.Series{}, err
	}
	stored, err := a.repo.GetSeries(ctx, series.ID)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(stored), nil
}

func (a *seriesRepositoryAdapter) SoftDeleteSeries(ctx context.Context, id string) error {
	return a.repo.SoftDeleteSeries(ctx, id)
}

func (a *seriesRepositoryAdapter) ListActiveSeries(ctx context.Context) ([]application.Series, error) {
	models, err := a.repo.ListActiveSeries(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	series := make([]application.Series, 0, len(models))
	for _, model := range models {
		series = append(series, toApplicationSeries(model))
	}
	return series, nil
}

func (a *seriesRepositoryAdapter) SplitSeries(ctx context.Context, truncated, created application.Series, pivot time.Time) error {
	return a.repo.SplitSeries(ctx, toPersistenceSeries(truncated), toPersistenceSeries(created), pivot)
}

type exceptionRepositoryAdapter struct {
	repo persistence.ExceptionRepository
}

func newExceptionRepositoryAdapter(repo persistence.ExceptionRepository) *exceptionRepositoryAdapter {
	return &exceptionRepositoryAdapter{repo: repo}
}

func (a *exceptionRepositoryAdapter) UpsertException(ctx context.Context, exception application.Exception) (application.Exception, error) {
	stored, err := a.repo.UpsertException(ctx, toPersistenceException(exception))
	if err != nil {
		return application.Exception{}, err
	}
	return toApplicationException(stored), nil
}

func (a *exceptionRepositoryAdapter) GetException(ctx context.Context, seriesID string, occurrenceStart time.Time) (application.Exception, error) {
	stored, err := a.repo.GetException(ctx, seriesID, occurrenceStart)
	if err != nil {
		return application.Exception{}, err
	}
	return toApplicationException(stored), nil
}

func (a *exceptionRepositoryAdapter) FindExceptionByOverrideStart(ctx context.Context, seriesID string, overrideStart time.Time) (application.Exception, error) {
	stored, err := a.repo.FindExceptionByOverrideStart(ctx, seriesID, overrideStart)
	if err != nil {
		return application.Exception{}, err
	}
	return toApplicationException(stored), nil
}

func (a *exceptionRepositoryAdapter) ListExceptionsForSeries(ctx context.Context, seriesID string) ([]application.Exception, error) {
	models, err := a.repo.ListExceptionsForSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	exceptions := make([]application.Exception, 0, len(models))
	for _, model := range models {
		exceptions = append(exceptions, toApplicationException(model))
	}
	return exceptions, nil
}

func toPersistenceSeries(series application.Series) persistence.Series {
	return persistence.Series{
		ID:              series.ID,
		Title:           series.Title,
		Start:           series.Start,
		DurationMinutes: series.DurationMinutes,
		Frequency:       string(series.Frequency),
		Interval:        series.Interval,
		Weekdays:        append([]time.Weekday(nil), series.Weekdays...),
		Until:           cloneTime(series.Until),
		Link:            series.Link,
		Notes:           series.Notes,
		Location:        series.Location,
		Host:            series.Host,
		EventType:       string(series.EventType),
		IsDeleted:       series.IsDeleted,
		CreatedAt:       series.CreatedAt,
		UpdatedAt:       series.UpdatedAt,
	}
}

func toApplicationSeries(model persistence.Series) application.Series {
	return application.Series{
		ID:              model.ID,
		Title:           model.Title,
		Start:           model.Start,
		DurationMinutes: model.DurationMinutes,
		Frequency:       recurrence.Frequency(model.Frequency),
		Interval:        model.Interval,
		Weekdays:        append([]time.Weekday(nil), model.Weekdays...),
		Until:           cloneTime(model.Until),
		Link:            model.Link,
		Notes:           model.Notes,
		Location:        model.Location,
		Host:            model.Host,
		EventType:       application.EventType(model.EventType),
		IsDeleted:       model.IsDeleted,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func toPersistenceException(exception application.Exception) persistence.Exception {
	record := persistence.Exception{
		ID:                      exception.ID,
		SeriesID:                exception.SeriesID,
		OccurrenceStart:         exception.OccurrenceStart,
		Deleted:                 exception.Deleted,
		OverrideStart:           cloneTime(exception.Overrides.Start),
		OverrideDurationMinutes: cloneInt(exception.Overrides.DurationMinutes),
		OverrideTitle:           cloneString(exception.Overrides.Title),
		OverrideLink:            cloneString(exception.Overrides.Link),
		OverrideNotes:           cloneString(exception.Overrides.Notes),
		OverrideLocation:        cloneString(exception.Overrides.Location),
		OverrideHost:            cloneString(exception.Overrides.Host),
		CreatedAt:               exception.CreatedAt,
	}
	if exception.Overrides.EventType != nil {
		eventType := string(*exception.Overrides.EventType)
		record.OverrideEventType = &eventType
	}
	return record
}

func toApplicationException(model persistence.Exception) application.Exception {
	exception := application.Exception{
		ID:              model.ID,
		SeriesID:        model.SeriesID,
		OccurrenceStart: model.OccurrenceStart,
		Deleted:         model.Deleted,
		Overrides: application.ExceptionOverrides{
			Start:           cloneTime(model.OverrideStart),
			DurationMinutes: cloneInt(model.OverrideDurationMinutes),
			Title:           cloneString(model.OverrideTitle),
			Link:            cloneString(model.OverrideLink),
			Notes:           cloneString(model.OverrideNotes),
			Location:        cloneString(model.OverrideLocation),
			Host:            cloneString(model.OverrideHost),
		},
		CreatedAt: model.CreatedAt,
	}
	if model.OverrideEventType != nil {
		eventType := application.EventType(*model.OverrideEventType)
		exception.Overrides.EventType = &eventType
	}
	return exception
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
