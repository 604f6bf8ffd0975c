package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/recurring-calendar/internal/persistence"
	"github.com/example/recurring-calendar/internal/recurrence"
)

type stubExceptionRepository struct {
	upsertFn func(ctx context.Context, exception Exception) (Exception, error)
	getFn    func(ctx context.Context, seriesID string, occurrenceStart time.Time) (Exception, error)
	findFn   func(ctx context.Context, seriesID string, overrideStart time.Time) (Exception, error)
	listFn   func(ctx context.Context, seriesID string) ([]Exception, error)
}

func (s *stubExceptionRepository) UpsertException(ctx context.Context, exception Exception) (Exception, error) {
	if s.upsertFn == nil {
		return exception, nil
	}
	return s.upsertFn(ctx, exception)
}

func (s *stubExceptionRepository) GetException(ctx context.Context, seriesID string, occurrenceStart time.Time) (Exception, error) {
	if s.getFn == nil {
		return Exception{}, persistence.ErrNotFound
	}
	return s.getFn(ctx, seriesID, occurrenceStart)
}

func (s *stubExceptionRepository) FindExceptionByOverrideStart(ctx context.Context, seriesID string, overrideStart time.Time) (Exception, error) {
	if s.findFn == nil {
		return Exception{}, persistence.ErrNotFound
	}
	return s.findFn(ctx, seriesID, overrideStart)
}

func (s *stubExceptionRepository) ListExceptionsForSeries(ctx context.Context, seriesID string) ([]Exception, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, seriesID)
}

func weeklyMondaySeries() Series {
	return Series{
		ID:              "series-weekly",
		Title:           "Weekly sync",
		Start:           time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Frequency:       recurrence.FrequencyWeekly,
		Interval:        1,
		Weekdays:        []time.Weekday{time.Monday},
		EventType:       EventTypeMeeting,
	}
}

func newOccurrenceService(series SeriesRepository, exceptions ExceptionRepository, cache *WindowCache) *OccurrenceService {
	return NewOccurrenceService(series, exceptions, cache, sequentialIDs("exception"), fixedNow)
}

func TestMaterializeOverlaysMovedException(t *testing.T) {
	weekly := weeklyMondaySeries()
	secondStart := weekly.Start.AddDate(0, 0, 7)
	movedStart := secondStart.Add(2 * time.Hour)
	movedTitle := "Moved sync"

	seriesRepo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) { return []Series{weekly}, nil },
	}
	exceptionRepo := &stubExceptionRepository{
		listFn: func(ctx context.Context, seriesID string) ([]Exception, error) {
			return []Exception{{
				ID:              "exc-1",
				SeriesID:        weekly.ID,
				OccurrenceStart: secondStart,
				Overrides: ExceptionOverrides{
					Start: &movedStart,
					Title: &movedTitle,
				},
			}}, nil
		},
	}
	service := newOccurrenceService(seriesRepo, exceptionRepo, nil)

	result, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart: weekly.Start,
		WindowEnd:   weekly.Start.AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if len(result.Occurrences) != 2 {
		t.Fatalf("len(Occurrences) = %d, want 2", len(result.Occurrences))
	}

	first := result.Occurrences[0]
	if first.IsException || !first.Start.Equal(weekly.Start) || first.Title != "Weekly sync" {
		t.Errorf("first occurrence = %+v, want untouched series occurrence", first)
	}

	moved := result.Occurrences[1]
	if !moved.IsException {
		t.Error("second occurrence should be flagged as an exception")
	}
	if !moved.Start.Equal(movedStart) {
		t.Errorf("moved.Start = %v, want %v", moved.Start, movedStart)
	}
	if !moved.OriginalStart.Equal(secondStart) {
		t.Errorf("moved.OriginalStart = %v, want %v", moved.OriginalStart, secondStart)
	}
	if moved.Title != movedTitle {
		t.Errorf("moved.Title = %q, want %q", moved.Title, movedTitle)
	}
	if moved.DurationMinutes != 60 {
		t.Errorf("moved.DurationMinutes = %d, want inherited 60", moved.DurationMinutes)
	}
}

func TestMaterializeDropsDeletedOccurrence(t *testing.T) {
	weekly := weeklyMondaySeries()
	secondStart := weekly.Start.AddDate(0, 0, 7)

	seriesRepo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) { return []Series{weekly}, nil },
	}
	exceptionRepo := &stubExceptionRepository{
		listFn: func(ctx context.Context, seriesID string) ([]Exception, error) {
			return []Exception{{
				ID:              "exc-1",
				SeriesID:        weekly.ID,
				OccurrenceStart: secondStart,
				Deleted:         true,
			}}, nil
		},
	}
	service := newOccurrenceService(seriesRepo, exceptionRepo, nil)

	result, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart: weekly.Start,
		WindowEnd:   weekly.Start.AddDate(0, 0, 14),
	})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if len(result.Occurrences) != 1 {
		t.Fatalf("len(Occurrences) = %d, want 1", len(result.Occurrences))
	}
	if !result.Occurrences[0].Start.Equal(weekly.Start) {
		t.Fatalf("surviving occurrence = %v, want %v", result.Occurrences[0].Start, weekly.Start)
	}
}

func TestMaterializeWindowBoundaries(t *testing.T) {
	weekly := weeklyMondaySeries()
	seriesRepo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) { return []Series{weekly}, nil },
	}
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, nil)

	// Window start is inclusive, window end exclusive: the occurrence at the
	// end instant must not appear.
	result, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart: weekly.Start,
		WindowEnd:   weekly.Start.AddDate(0, 0, 7),
	})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if len(result.Occurrences) != 1 {
		t.Fatalf("len(Occurrences) = %d, want 1", len(result.Occurrences))
	}
	if !result.Occurrences[0].Start.Equal(weekly.Start) {
		t.Fatalf("occurrence = %v, want window start instant", result.Occurrences[0].Start)
	}
}

func TestMaterializeOneOffSeries(t *testing.T) {
	oneOff := weeklyMondaySeries()
	oneOff.ID = "series-once"
	oneOff.Frequency = recurrence.FrequencyNever
	oneOff.Weekdays = nil

	seriesRepo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) { return []Series{oneOff}, nil },
	}
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, nil)

	inside, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart: oneOff.Start.Add(-time.Hour),
		WindowEnd:   oneOff.Start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if len(inside.Occurrences) != 1 {
		t.Fatalf("len(Occurrences) = %d, want 1", len(inside.Occurrences))
	}

	outside, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart: oneOff.Start.Add(time.Hour),
		WindowEnd:   oneOff.Start.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if len(outside.Occurrences) != 0 {
		t.Fatalf("len(Occurrences) = %d, want 0 outside the window", len(outside.Occurrences))
	}
}

func TestMaterializeInvalidWindow(t *testing.T) {
	service := newOccurrenceService(&stubSeriesRepository{}, &stubExceptionRepository{}, nil)

	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	_, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart: start,
		WindowEnd:   start.AddDate(0, 0, -7),
	})
	if !errors.Is(err, recurrence.ErrInvalidWindow) {
		t.Fatalf("Materialize error = %v, want ErrInvalidWindow", err)
	}
}

func TestMaterializeWindowTooLarge(t *testing.T) {
	daily := weeklyMondaySeries()
	daily.Frequency = recurrence.FrequencyDaily
	daily.Weekdays = nil

	seriesRepo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) { return []Series{daily}, nil },
	}
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, nil)

	_, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart: daily.Start,
		WindowEnd:   daily.Start.AddDate(40, 0, 0),
	})
	if !errors.Is(err, recurrence.ErrWindowTooLarge) {
		t.Fatalf("Materialize error = %v, want ErrWindowTooLarge", err)
	}
}

func TestMaterializeServesRepeatedWindowFromCache(t *testing.T) {
	weekly := weeklyMondaySeries()
	listCalls := 0
	seriesRepo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) {
			listCalls++
			return []Series{weekly}, nil
		},
	}
	cache := NewWindowCache(time.Minute, 8, fixedNow)
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, cache)

	params := MaterializeParams{
		WindowStart: weekly.Start,
		WindowEnd:   weekly.Start.AddDate(0, 0, 14),
	}
	first, err := service.Materialize(context.Background(), params)
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	second, err := service.Materialize(context.Background(), params)
	if err != nil {
		t.Fatalf("second Materialize returned error: %v", err)
	}
	if listCalls != 1 {
		t.Fatalf("ListActiveSeries calls = %d, want 1 (second request served from cache)", listCalls)
	}
	if len(first.Occurrences) != len(second.Occurrences) {
		t.Fatalf("cached result differs: %d vs %d occurrences", len(first.Occurrences), len(second.Occurrences))
	}
	for i := range first.Occurrences {
		if !first.Occurrences[i].Start.Equal(second.Occurrences[i].Start) {
			t.Fatalf("cached occurrence %d differs: %v vs %v", i, first.Occurrences[i].Start, second.Occurrences[i].Start)
		}
	}
}

func TestMaterializeLocalTimes(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation returned error: %v", err)
	}

	weekly := weeklyMondaySeries()
	seriesRepo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) { return []Series{weekly}, nil },
	}
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, nil)

	result, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart:  weekly.Start,
		WindowEnd:    weekly.Start.AddDate(0, 0, 7),
		Location:     berlin,
		TimezoneName: "Europe/Berlin",
	})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	local := result.Occurrences[0].LocalStart
	if local.Location().String() != "Europe/Berlin" {
		t.Fatalf("LocalStart zone = %v, want Europe/Berlin", local.Location())
	}
	// 09:00 UTC in January is 10:00 in Berlin.
	if local.Hour() != 10 {
		t.Fatalf("LocalStart hour = %d, want 10", local.Hour())
	}
	if !local.Equal(result.Occurrences[0].Start) {
		t.Fatal("LocalStart must denote the same instant as Start")
	}
}

func TestMaterializeReportsOverlaps(t *testing.T) {
	first := weeklyMondaySeries()
	second := weeklyMondaySeries()
	second.ID = "series-weekly-2"
	second.Start = first.Start.Add(30 * time.Minute)

	seriesRepo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) { return []Series{first, second}, nil },
	}
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, nil)

	result, err := service.Materialize(context.Background(), MaterializeParams{
		WindowStart: first.Start,
		WindowEnd:   first.Start.AddDate(0, 0, 7),
	})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected an overlap warning for concurrent occurrences")
	}
	warning := result.Warnings[0]
	if warning.SeriesID == warning.WithSeriesID {
		t.Fatalf("warning pairs a series with itself: %+v", warning)
	}
}

func TestUpsertExceptionRejectsNonOccurrence(t *testing.T) {
	weekly := weeklyMondaySeries()
	seriesRepo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
	}
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, nil)

	_, err := service.UpsertException(context.Background(), UpsertExceptionParams{
		SeriesID:        weekly.ID,
		OccurrenceStart: weekly.Start.AddDate(0, 0, 1),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("UpsertException error = %v, want ValidationError", err)
	}
	if _, ok := vErr.FieldErrors["occurrence_start_utc"]; !ok {
		t.Fatalf("FieldErrors = %v, want entry for occurrence_start_utc", vErr.FieldErrors)
	}
}

func TestUpsertExceptionValidatesOverrides(t *testing.T) {
	weekly := weeklyMondaySeries()
	seriesRepo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
	}
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, nil)

	badDuration := -15
	_, err := service.UpsertException(context.Background(), UpsertExceptionParams{
		SeriesID:        weekly.ID,
		OccurrenceStart: weekly.Start,
		Overrides:       ExceptionOverrides{DurationMinutes: &badDuration},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("UpsertException error = %v, want ValidationError", err)
	}
	if _, ok := vErr.FieldErrors["duration_minutes"]; !ok {
		t.Fatalf("FieldErrors = %v, want entry for duration_minutes", vErr.FieldErrors)
	}
}

func TestUpsertExceptionPersistsAndInvalidatesCache(t *testing.T) {
	weekly := weeklyMondaySeries()
	seriesRepo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
	}
	var captured Exception
	exceptionRepo := &stubExceptionRepository{
		upsertFn: func(ctx context.Context, exception Exception) (Exception, error) {
			captured = exception
			return exception, nil
		},
	}
	cache := NewWindowCache(time.Minute, 8, fixedNow)
	cache.Store("window", MaterializeResult{})
	service := newOccurrenceService(seriesRepo, exceptionRepo, cache)

	movedStart := weekly.Start.Add(2 * time.Hour)
	exception, err := service.UpsertException(context.Background(), UpsertExceptionParams{
		SeriesID:        weekly.ID,
		OccurrenceStart: weekly.Start,
		Overrides:       ExceptionOverrides{Start: &movedStart},
	})
	if err != nil {
		t.Fatalf("UpsertException returned error: %v", err)
	}
	if exception.ID != "exception-1" {
		t.Errorf("exception.ID = %q, want generated identity", exception.ID)
	}
	if exception.Deleted {
		t.Error("a fresh override must clear the deletion flag")
	}
	if !captured.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", captured.CreatedAt, testNow)
	}
	if captured.Overrides.Start == nil || !captured.Overrides.Start.Equal(movedStart) {
		t.Errorf("persisted override start = %v, want %v", captured.Overrides.Start, movedStart)
	}
	if _, ok := cache.Get("window"); ok {
		t.Fatal("cache entry survived an exception write")
	}
}

func TestDeleteOccurrenceMarksExistingException(t *testing.T) {
	weekly := weeklyMondaySeries()
	existing := Exception{
		ID:              "exc-existing",
		SeriesID:        weekly.ID,
		OccurrenceStart: weekly.Start,
		CreatedAt:       testNow.Add(-time.Hour),
	}

	seriesRepo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
	}
	var captured Exception
	exceptionRepo := &stubExceptionRepository{
		getFn: func(ctx context.Context, seriesID string, occurrenceStart time.Time) (Exception, error) {
			return existing, nil
		},
		upsertFn: func(ctx context.Context, exception Exception) (Exception, error) {
			captured = exception
			return exception, nil
		},
	}
	service := newOccurrenceService(seriesRepo, exceptionRepo, nil)

	err := service.DeleteOccurrence(context.Background(), DeleteOccurrenceParams{
		SeriesID:        weekly.ID,
		OccurrenceStart: weekly.Start,
	})
	if err != nil {
		t.Fatalf("DeleteOccurrence returned error: %v", err)
	}
	if !captured.Deleted {
		t.Fatal("existing exception was not marked deleted")
	}
	if captured.ID != "exc-existing" {
		t.Fatalf("captured.ID = %q, want the stored identity", captured.ID)
	}
}

func TestDeleteOccurrenceResolvesMovedStart(t *testing.T) {
	weekly := weeklyMondaySeries()
	movedStart := weekly.Start.Add(2 * time.Hour)
	moved := Exception{
		ID:              "exc-moved",
		SeriesID:        weekly.ID,
		OccurrenceStart: weekly.Start,
		Overrides:       ExceptionOverrides{Start: &movedStart},
	}

	seriesRepo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
	}
	var captured Exception
	exceptionRepo := &stubExceptionRepository{
		findFn: func(ctx context.Context, seriesID string, overrideStart time.Time) (Exception, error) {
			if !overrideStart.Equal(movedStart) {
				return Exception{}, persistence.ErrNotFound
			}
			return moved, nil
		},
		upsertFn: func(ctx context.Context, exception Exception) (Exception, error) {
			captured = exception
			return exception, nil
		},
	}
	service := newOccurrenceService(seriesRepo, exceptionRepo, nil)

	// The caller points at the displayed (moved) time, not the original slot.
	err := service.DeleteOccurrence(context.Background(), DeleteOccurrenceParams{
		SeriesID:        weekly.ID,
		OccurrenceStart: movedStart,
	})
	if err != nil {
		t.Fatalf("DeleteOccurrence returned error: %v", err)
	}
	if captured.ID != "exc-moved" || !captured.Deleted {
		t.Fatalf("captured = %+v, want exc-moved marked deleted", captured)
	}
}

func TestDeleteOccurrenceRecordsDeletionMarker(t *testing.T) {
	weekly := weeklyMondaySeries()
	seriesRepo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
	}
	var captured Exception
	exceptionRepo := &stubExceptionRepository{
		upsertFn: func(ctx context.Context, exception Exception) (Exception, error) {
			captured = exception
			return exception, nil
		},
	}
	service := newOccurrenceService(seriesRepo, exceptionRepo, nil)

	target := weekly.Start.AddDate(0, 0, 7)
	err := service.DeleteOccurrence(context.Background(), DeleteOccurrenceParams{
		SeriesID:        weekly.ID,
		OccurrenceStart: target,
	})
	if err != nil {
		t.Fatalf("DeleteOccurrence returned error: %v", err)
	}
	if !captured.Deleted || !captured.OccurrenceStart.Equal(target) {
		t.Fatalf("captured = %+v, want deletion marker at %v", captured, target)
	}
	if captured.ID != "exception-1" {
		t.Fatalf("captured.ID = %q, want generated identity", captured.ID)
	}
}

func TestDeleteOccurrenceRejectsNonOccurrence(t *testing.T) {
	weekly := weeklyMondaySeries()
	seriesRepo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
	}
	service := newOccurrenceService(seriesRepo, &stubExceptionRepository{}, nil)

	err := service.DeleteOccurrence(context.Background(), DeleteOccurrenceParams{
		SeriesID:        weekly.ID,
		OccurrenceStart: weekly.Start.AddDate(0, 0, 3),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("DeleteOccurrence error = %v, want ValidationError", err)
	}
}

func TestDeleteOccurrenceUnknownSeries(t *testing.T) {
	service := newOccurrenceService(&stubSeriesRepository{}, &stubExceptionRepository{}, nil)

	err := service.DeleteOccurrence(context.Background(), DeleteOccurrenceParams{
		SeriesID:        "missing",
		OccurrenceStart: testNow,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteOccurrence error = %v, want ErrNotFound", err)
	}
}
