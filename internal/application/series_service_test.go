package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/recurring-calendar/internal/persistence"
	"github.com/example/recurring-calendar/internal/recurrence"
)

type stubSeriesRepository struct {
	createFn     func(ctx context.Context, series Series) (Series, error)
	getFn        func(ctx context.Context, id string) (Series, error)
	updateFn     func(ctx context.Context, series Series) (Series, error)
	softDeleteFn func(ctx context.Context, id string) error
	listFn       func(ctx context.Context) ([]Series, error)
	splitFn      func(ctx context.Context, truncated, created Series, pivot time.Time) error
}

func (s *stubSeriesRepository) CreateSeries(ctx context.Context, series Series) (Series, error) {
	if s.createFn == nil {
		return series, nil
	}
	return s.createFn(ctx, series)
}

func (s *stubSeriesRepository) GetSeries(ctx context.Context, id string) (Series, error) {
	if s.getFn == nil {
		return Series{}, persistence.ErrNotFound
	}
	return s.getFn(ctx, id)
}

func (s *stubSeriesRepository) UpdateSeries(ctx context.Context, series Series) (Series, error) {
	if s.updateFn == nil {
		return series, nil
	}
	return s.updateFn(ctx, series)
}

func (s *stubSeriesRepository) SoftDeleteSeries(ctx context.Context, id string) error {
	if s.softDeleteFn == nil {
		return nil
	}
	return s.softDeleteFn(ctx, id)
}

func (s *stubSeriesRepository) ListActiveSeries(ctx context.Context) ([]Series, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

func (s *stubSeriesRepository) SplitSeries(ctx context.Context, truncated, created Series, pivot time.Time) error {
	if s.splitFn == nil {
		return nil
	}
	return s.splitFn(ctx, truncated, created, pivot)
}

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func sequentialIDs(prefix string) func() string {
	counter := 0
	return func() string {
		counter++
		return fmt.Sprintf("%s-%d", prefix, counter)
	}
}

func validInput() SeriesInput {
	return SeriesInput{
		Title:           "Weekly sync",
		Start:           time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Frequency:       recurrence.FrequencyWeekly,
		Interval:        1,
		Weekdays:        []time.Weekday{time.Monday},
		EventType:       EventTypeMeeting,
	}
}

func TestCreateSeriesAssignsIdentityAndTimestamps(t *testing.T) {
	var captured Series
	repo := &stubSeriesRepository{
		createFn: func(ctx context.Context, series Series) (Series, error) {
			captured = series
			return series, nil
		},
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	input := validInput()
	input.Title = "  Weekly sync  "

	created, err := service.CreateSeries(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateSeries returned error: %v", err)
	}
	if created.ID != "series-1" {
		t.Errorf("created.ID = %q, want %q", created.ID, "series-1")
	}
	if created.Title != "Weekly sync" {
		t.Errorf("created.Title = %q, want trimmed title", created.Title)
	}
	if !created.CreatedAt.Equal(testNow) || !created.UpdatedAt.Equal(testNow) {
		t.Errorf("timestamps = %v/%v, want %v", created.CreatedAt, created.UpdatedAt, testNow)
	}
	if captured.ID != "series-1" {
		t.Errorf("persisted ID = %q, want %q", captured.ID, "series-1")
	}
}

func TestCreateSeriesValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SeriesInput)
		field  string
	}{
		{
			name:   "missing title",
			mutate: func(input *SeriesInput) { input.Title = "   " },
			field:  "title",
		},
		{
			name:   "zero duration",
			mutate: func(input *SeriesInput) { input.DurationMinutes = 0 },
			field:  "duration_minutes",
		},
		{
			name:   "negative duration",
			mutate: func(input *SeriesInput) { input.DurationMinutes = -30 },
			field:  "duration_minutes",
		},
		{
			name:   "unknown frequency",
			mutate: func(input *SeriesInput) { input.Frequency = "HOURLY" },
			field:  "frequency",
		},
		{
			name: "fortnightly with weekly interval",
			mutate: func(input *SeriesInput) {
				input.Frequency = recurrence.FrequencyFortnightly
				input.Interval = 1
			},
			field: "interval",
		},
		{
			name:   "negative interval",
			mutate: func(input *SeriesInput) { input.Interval = -1 },
			field:  "interval",
		},
		{
			name: "until before start",
			mutate: func(input *SeriesInput) {
				until := input.Start.Add(-time.Hour)
				input.Until = &until
			},
			field: "until",
		},
		{
			name: "until equal to start",
			mutate: func(input *SeriesInput) {
				until := input.Start
				input.Until = &until
			},
			field: "until",
		},
		{
			name:   "malformed link",
			mutate: func(input *SeriesInput) { input.Link = "not a url" },
			field:  "link",
		},
		{
			name:   "unknown event type",
			mutate: func(input *SeriesInput) { input.EventType = "Party" },
			field:  "event_type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := NewSeriesService(&stubSeriesRepository{}, nil, sequentialIDs("series"), fixedNow)
			input := validInput()
			tc.mutate(&input)

			_, err := service.CreateSeries(context.Background(), input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("CreateSeries error = %v, want ValidationError", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("FieldErrors = %v, want entry for %q", vErr.FieldErrors, tc.field)
			}
		})
	}
}

func TestCreateSeriesIntervalDefaults(t *testing.T) {
	var captured Series
	repo := &stubSeriesRepository{
		createFn: func(ctx context.Context, series Series) (Series, error) {
			captured = series
			return series, nil
		},
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	t.Run("fortnightly defaults to two", func(t *testing.T) {
		input := validInput()
		input.Frequency = recurrence.FrequencyFortnightly
		input.Interval = 0
		if _, err := service.CreateSeries(context.Background(), input); err != nil {
			t.Fatalf("CreateSeries returned error: %v", err)
		}
		if captured.Interval != 2 {
			t.Fatalf("Interval = %d, want 2", captured.Interval)
		}
	})

	t.Run("workday forces one", func(t *testing.T) {
		input := validInput()
		input.Frequency = recurrence.FrequencyWorkday
		input.Interval = 5
		input.Weekdays = nil
		if _, err := service.CreateSeries(context.Background(), input); err != nil {
			t.Fatalf("CreateSeries returned error: %v", err)
		}
		if captured.Interval != 1 {
			t.Fatalf("Interval = %d, want 1", captured.Interval)
		}
	})
}

func TestCreateSeriesNormalizesWeekdays(t *testing.T) {
	var captured Series
	repo := &stubSeriesRepository{
		createFn: func(ctx context.Context, series Series) (Series, error) {
			captured = series
			return series, nil
		},
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	input := validInput()
	input.Weekdays = []time.Weekday{time.Wednesday, time.Monday, time.Wednesday}

	if _, err := service.CreateSeries(context.Background(), input); err != nil {
		t.Fatalf("CreateSeries returned error: %v", err)
	}
	want := []time.Weekday{time.Monday, time.Wednesday}
	if len(captured.Weekdays) != len(want) {
		t.Fatalf("Weekdays = %v, want %v", captured.Weekdays, want)
	}
	for i := range want {
		if captured.Weekdays[i] != want[i] {
			t.Fatalf("Weekdays = %v, want %v", captured.Weekdays, want)
		}
	}
}

func TestUpdateSeriesPreservesIdentity(t *testing.T) {
	createdAt := testNow.Add(-48 * time.Hour)
	existing := seriesFromInput(validInput())
	existing.ID = "series-existing"
	existing.CreatedAt = createdAt
	existing.UpdatedAt = createdAt

	var captured Series
	repo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, series Series) (Series, error) {
			captured = series
			return series, nil
		},
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	input := validInput()
	input.Title = "Renamed sync"

	updated, err := service.UpdateSeries(context.Background(), "series-existing", input)
	if err != nil {
		t.Fatalf("UpdateSeries returned error: %v", err)
	}
	if updated.Title != "Renamed sync" {
		t.Errorf("updated.Title = %q, want %q", updated.Title, "Renamed sync")
	}
	if captured.ID != "series-existing" {
		t.Errorf("persisted ID = %q, want existing identity", captured.ID)
	}
	if !captured.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want preserved %v", captured.CreatedAt, createdAt)
	}
	if !captured.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want %v", captured.UpdatedAt, testNow)
	}
}

func TestUpdateSeriesUnknownSeries(t *testing.T) {
	service := NewSeriesService(&stubSeriesRepository{}, nil, sequentialIDs("series"), fixedNow)

	_, err := service.UpdateSeries(context.Background(), "missing", validInput())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateSeries error = %v, want ErrNotFound", err)
	}
}

func TestListSeriesOrdersByStart(t *testing.T) {
	base := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	repo := &stubSeriesRepository{
		listFn: func(ctx context.Context) ([]Series, error) {
			return []Series{
				{ID: "b", Start: base.Add(24 * time.Hour)},
				{ID: "c", Start: base},
				{ID: "a", Start: base},
			}, nil
		},
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	listed, err := service.ListSeries(context.Background())
	if err != nil {
		t.Fatalf("ListSeries returned error: %v", err)
	}
	got := []string{listed[0].ID, listed[1].ID, listed[2].ID}
	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDeleteSeriesInvalidatesCache(t *testing.T) {
	cache := NewWindowCache(time.Minute, 8, fixedNow)
	cache.Store("window", MaterializeResult{Occurrences: []Occurrence{{SeriesID: "series-1"}}})

	repo := &stubSeriesRepository{
		softDeleteFn: func(ctx context.Context, id string) error { return nil },
	}
	service := NewSeriesService(repo, cache, sequentialIDs("series"), fixedNow)

	if err := service.DeleteSeries(context.Background(), "series-1"); err != nil {
		t.Fatalf("DeleteSeries returned error: %v", err)
	}
	if _, ok := cache.Get("window"); ok {
		t.Fatal("cache entry survived a series deletion")
	}
}

func TestSplitSeriesRejectsOneOff(t *testing.T) {
	oneOff := seriesFromInput(validInput())
	oneOff.ID = "series-once"
	oneOff.Frequency = recurrence.FrequencyNever

	repo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return oneOff, nil },
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	_, err := service.SplitSeries(context.Background(), SplitParams{
		SeriesID: "series-once",
		Pivot:    oneOff.Start,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("SplitSeries error = %v, want ValidationError", err)
	}
	if _, ok := vErr.FieldErrors["frequency"]; !ok {
		t.Fatalf("FieldErrors = %v, want entry for frequency", vErr.FieldErrors)
	}
}

func TestSplitSeriesPivotNotInSeries(t *testing.T) {
	weekly := seriesFromInput(validInput())
	weekly.ID = "series-weekly"

	repo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	// A Tuesday instant never matches a Monday-only weekly rule.
	_, err := service.SplitSeries(context.Background(), SplitParams{
		SeriesID: "series-weekly",
		Pivot:    weekly.Start.AddDate(0, 0, 1),
	})
	if !errors.Is(err, ErrPivotNotInSeries) {
		t.Fatalf("SplitSeries error = %v, want ErrPivotNotInSeries", err)
	}
}

func TestSplitSeriesTruncatesAndCreates(t *testing.T) {
	until := time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)
	weekly := seriesFromInput(validInput())
	weekly.ID = "series-weekly"
	weekly.Until = &until
	weekly.CreatedAt = testNow.Add(-30 * 24 * time.Hour)

	var splitTruncated, splitCreated Series
	var splitPivot time.Time
	repo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
		splitFn: func(ctx context.Context, truncated, created Series, pivot time.Time) error {
			splitTruncated = truncated
			splitCreated = created
			splitPivot = pivot
			return nil
		},
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	pivot := weekly.Start.AddDate(0, 0, 14)
	newTitle := "Weekly sync v2"
	newDuration := 45
	result, err := service.SplitSeries(context.Background(), SplitParams{
		SeriesID: "series-weekly",
		Pivot:    pivot,
		Updates: SeriesUpdates{
			Title:           &newTitle,
			DurationMinutes: &newDuration,
		},
	})
	if err != nil {
		t.Fatalf("SplitSeries returned error: %v", err)
	}

	if result.Truncated.Until == nil || !result.Truncated.Until.Equal(pivot) {
		t.Errorf("Truncated.Until = %v, want pivot %v", result.Truncated.Until, pivot)
	}
	if !result.Created.Start.Equal(pivot) {
		t.Errorf("Created.Start = %v, want pivot %v", result.Created.Start, pivot)
	}
	if result.Created.Until == nil || !result.Created.Until.Equal(until) {
		t.Errorf("Created.Until = %v, want original bound %v", result.Created.Until, until)
	}
	if result.Created.ID != "series-1" {
		t.Errorf("Created.ID = %q, want generated identity", result.Created.ID)
	}
	if result.Created.Title != newTitle {
		t.Errorf("Created.Title = %q, want %q", result.Created.Title, newTitle)
	}
	if result.Created.DurationMinutes != newDuration {
		t.Errorf("Created.DurationMinutes = %d, want %d", result.Created.DurationMinutes, newDuration)
	}
	if result.Truncated.Title != "Weekly sync" {
		t.Errorf("Truncated.Title = %q, updates must not touch the original", result.Truncated.Title)
	}

	if !splitPivot.Equal(pivot) {
		t.Errorf("repo pivot = %v, want %v", splitPivot, pivot)
	}
	if splitTruncated.ID != "series-weekly" || splitCreated.ID != "series-1" {
		t.Errorf("repo received %q/%q, want series-weekly/series-1", splitTruncated.ID, splitCreated.ID)
	}
}

func TestSplitSeriesMapsDuplicate(t *testing.T) {
	weekly := seriesFromInput(validInput())
	weekly.ID = "series-weekly"

	repo := &stubSeriesRepository{
		getFn: func(ctx context.Context, id string) (Series, error) { return weekly, nil },
		splitFn: func(ctx context.Context, truncated, created Series, pivot time.Time) error {
			return persistence.ErrDuplicate
		},
	}
	service := NewSeriesService(repo, nil, sequentialIDs("series"), fixedNow)

	_, err := service.SplitSeries(context.Background(), SplitParams{
		SeriesID: "series-weekly",
		Pivot:    weekly.Start.AddDate(0, 0, 7),
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("SplitSeries error = %v, want ErrAlreadyExists", err)
	}
}
