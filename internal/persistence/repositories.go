package persistence

import (
	"context"
	"time"
)

// SeriesRepository stores recurring event series.
type SeriesRepository interface {
	CreateSeries(ctx context.Context, series Series) error
	UpdateSeries(ctx context.Context, series Series) error
	GetSeries(ctx context.Context, id string) (Series, error)
	ListActiveSeries(ctx context.Context) ([]Series, error)
	SoftDeleteSeries(ctx context.Context, id string) error
	// SplitSeries applies a series split atomically: the original row is
	// truncated, the new row inserted, and exceptions at or after the pivot
	// re-parented to the new series. Either all three writes commit or none do.
	SplitSeries(ctx context.Context, truncated, created Series, pivot time.Time) error
	// PurgeDeletedSeries removes soft-deleted series last updated before the
	// reference instant, returning the number of rows removed.
	PurgeDeletedSeries(ctx context.Context, before time.Time) (int, error)
}

// ExceptionRepository stores per-occurrence overrides keyed by
// (series id, occurrence start).
type ExceptionRepository interface {
	UpsertException(ctx context.Context, exception Exception) (Exception, error)
	GetException(ctx context.Context, seriesID string, occurrenceStart time.Time) (Exception, error)
	FindExceptionByOverrideStart(ctx context.Context, seriesID string, overrideStart time.Time) (Exception, error)
	ListExceptionsForSeries(ctx context.Context, seriesID string) ([]Exception, error)
	DeleteExceptionsForSeries(ctx context.Context, seriesID string) error
}
