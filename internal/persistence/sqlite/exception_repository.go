package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/recurring-calendar/internal/persistence"
)

const exceptionColumns = `id, series_id, occurrence_start, deleted, override_start,
	override_duration_minutes, override_title, override_link, override_notes,
	override_location, override_host, override_event_type, created_at`

// ExceptionRepository implements persistence.ExceptionRepository using SQLite
type ExceptionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
}

// NewExceptionRepository creates a new SQLite exception repository
func NewExceptionRepository(pool *ConnectionPool) *ExceptionRepository {
	return &ExceptionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
	}
}

// UpsertException creates or replaces the exception keyed by
// (series_id, occurrence_start). A conflicting upsert overwrites every
// override field; the stored identity and creation time are preserved.
func (r *ExceptionRepository) UpsertException(ctx context.Context, exception persistence.Exception) (persistence.Exception, error) {
	if exception.ID == "" || exception.SeriesID == "" {
		return persistence.Exception{}, persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO exceptions (` + exceptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (series_id, occurrence_start) DO UPDATE SET
			deleted = excluded.deleted,
			override_start = excluded.override_start,
			override_duration_minutes = excluded.override_duration_minutes,
			override_title = excluded.override_title,
			override_link = excluded.override_link,
			override_notes = excluded.override_notes,
			override_location = excluded.override_location,
			override_host = excluded.override_host,
			override_event_type = excluded.override_event_type
	`

	_, err := r.helper.Exec(ctx, query,
		exception.ID,
		exception.SeriesID,
		formatTime(exception.OccurrenceStart),
		boolToInt(exception.Deleted),
		nullableTime(exception.OverrideStart),
		nullableInt(exception.OverrideDurationMinutes),
		nullableString(exception.OverrideTitle),
		nullableString(exception.OverrideLink),
		nullableString(exception.OverrideNotes),
		nullableString(exception.OverrideLocation),
		nullableString(exception.OverrideHost),
		nullableString(exception.OverrideEventType),
		formatTime(exception.CreatedAt),
	)
	if err != nil {
		return persistence.Exception{}, mapStoreError(err)
	}

	// Re-read so the caller sees the stored identity after a conflict.
	return r.GetException(ctx, exception.SeriesID, exception.OccurrenceStart)
}

// GetException retrieves the exception keyed by the original occurrence instant
func (r *ExceptionRepository) GetException(ctx context.Context, seriesID string, occurrenceStart time.Time) (persistence.Exception, error) {
	if seriesID == "" {
		return persistence.Exception{}, persistence.ErrNotFound
	}

	query := `
		SELECT ` + exceptionColumns + `
		FROM exceptions
		WHERE series_id = ? AND occurrence_start = ?
	`

	row := r.helper.QueryRow(ctx, query, seriesID, formatTime(occurrenceStart))
	exception, err := scanExceptionRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Exception{}, persistence.ErrNotFound
		}
		return persistence.Exception{}, mapStoreError(err)
	}

	return exception, nil
}

// FindExceptionByOverrideStart retrieves the exception whose override start
// matches the given instant
func (r *ExceptionRepository) FindExceptionByOverrideStart(ctx context.Context, seriesID string, overrideStart time.Time) (persistence.Exception, error) {
	if seriesID == "" {
		return persistence.Exception{}, persistence.ErrNotFound
	}

	query := `
		SELECT ` + exceptionColumns + `
		FROM exceptions
		WHERE series_id = ? AND override_start = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	row := r.helper.QueryRow(ctx, query, seriesID, formatTime(overrideStart))
	exception, err := scanExceptionRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Exception{}, persistence.ErrNotFound
		}
		return persistence.Exception{}, mapStoreError(err)
	}

	return exception, nil
}

// ListExceptionsForSeries returns exceptions for a series ordered by the
// occurrence instant they target
func (r *ExceptionRepository) ListExceptionsForSeries(ctx context.Context, seriesID string) ([]persistence.Exception, error) {
	if seriesID == "" {
		return nil, nil
	}

	query := `
		SELECT ` + exceptionColumns + `
		FROM exceptions
		WHERE series_id = ?
		ORDER BY occurrence_start ASC, id ASC
	`

	rows, err := r.helper.Query(ctx, query, seriesID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var listed []persistence.Exception
	for rows.Next() {
		exception, err := scanExceptionRow(rows.Scan)
		if err != nil {
			return nil, mapStoreError(err)
		}
		listed = append(listed, exception)
	}

	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}

	return listed, nil
}

// DeleteExceptionsForSeries removes all exceptions attached to a series
func (r *ExceptionRepository) DeleteExceptionsForSeries(ctx context.Context, seriesID string) error {
	if seriesID == "" {
		return nil
	}

	query := `DELETE FROM exceptions WHERE series_id = ?`

	if _, err := r.helper.Exec(ctx, query, seriesID); err != nil {
		return mapStoreError(err)
	}

	return nil
}

func scanExceptionRow(scan func(dest ...interface{}) error) (persistence.Exception, error) {
	var exception persistence.Exception
	var occurrenceStartStr, createdAtStr string
	var overrideStart sql.NullString
	var overrideDuration sql.NullInt64
	var overrideTitle, overrideLink, overrideNotes sql.NullString
	var overrideLocation, overrideHost, overrideEventType sql.NullString
	var deleted int

	err := scan(
		&exception.ID,
		&exception.SeriesID,
		&occurrenceStartStr,
		&deleted,
		&overrideStart,
		&overrideDuration,
		&overrideTitle,
		&overrideLink,
		&overrideNotes,
		&overrideLocation,
		&overrideHost,
		&overrideEventType,
		&createdAtStr,
	)
	if err != nil {
		return persistence.Exception{}, err
	}

	exception.Deleted = deleted != 0

	if exception.OccurrenceStart, err = time.Parse(time.RFC3339, occurrenceStartStr); err != nil {
		return persistence.Exception{}, fmt.Errorf("failed to parse occurrence_start: %w", err)
	}
	if overrideStart.Valid {
		if exception.OverrideStart, err = parseTimePtr(overrideStart.String); err != nil {
			return persistence.Exception{}, fmt.Errorf("failed to parse override_start: %w", err)
		}
	}
	if overrideDuration.Valid {
		duration := int(overrideDuration.Int64)
		exception.OverrideDurationMinutes = &duration
	}
	exception.OverrideTitle = stringPtr(overrideTitle)
	exception.OverrideLink = stringPtr(overrideLink)
	exception.OverrideNotes = stringPtr(overrideNotes)
	exception.OverrideLocation = stringPtr(overrideLocation)
	exception.OverrideHost = stringPtr(overrideHost)
	exception.OverrideEventType = stringPtr(overrideEventType)

	if exception.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Exception{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return exception, nil
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	out := value.String
	return &out
}
