package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/recurring-calendar/internal/persistence"
)

// Times are stored as second-precision RFC3339 UTC strings. The fixed width
// makes lexicographic comparison in SQL match chronological order, which the
// split re-parenting update relies on.
func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

const seriesColumns = `id, title, start_time, duration_minutes, frequency, interval_value, weekdays,
	until_time, link, notes, location, host, event_type, is_deleted, created_at, updated_at`

// SeriesRepository implements persistence.SeriesRepository using SQLite
type SeriesRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
}

// NewSeriesRepository creates a new SQLite series repository
func NewSeriesRepository(pool *ConnectionPool) *SeriesRepository {
	return &SeriesRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
	}
}

// CreateSeries inserts a new series into the database
func (r *SeriesRepository) CreateSeries(ctx context.Context, series persistence.Series) error {
	if series.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO series (` + seriesColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query, seriesArgs(series)...)
	if err != nil {
		return mapStoreError(err)
	}

	return nil
}

// UpdateSeries updates an existing series, preserving creator metadata
func (r *SeriesRepository) UpdateSeries(ctx context.Context, series persistence.Series) error {
	if series.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		UPDATE series
		SET title = ?, start_time = ?, duration_minutes = ?, frequency = ?, interval_value = ?,
			weekdays = ?, until_time = ?, link = ?, notes = ?, location = ?, host = ?,
			event_type = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.helper.Exec(ctx, query,
		series.Title,
		formatTime(series.Start),
		series.DurationMinutes,
		series.Frequency,
		series.Interval,
		encodeWeekdays(series.Weekdays),
		nullableTime(series.Until),
		series.Link,
		series.Notes,
		series.Location,
		series.Host,
		series.EventType,
		boolToInt(series.IsDeleted),
		formatTime(series.UpdatedAt),
		series.ID,
	)
	if err != nil {
		return mapStoreError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// GetSeries retrieves a series by ID
func (r *SeriesRepository) GetSeries(ctx context.Context, id string) (persistence.Series, error) {
	if id == "" {
		return persistence.Series{}, persistence.ErrNotFound
	}

	query := `SELECT ` + seriesColumns + ` FROM series WHERE id = ?`

	row := r.helper.QueryRow(ctx, query, id)
	series, err := scanSeriesRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Series{}, persistence.ErrNotFound
		}
		return persistence.Series{}, mapStoreError(err)
	}

	return series, nil
}

// ListActiveSeries returns all series not marked deleted, ordered by start
func (r *SeriesRepository) ListActiveSeries(ctx context.Context) ([]persistence.Series, error) {
	query := `
		SELECT ` + seriesColumns + `
		FROM series
		WHERE is_deleted = 0
		ORDER BY start_time ASC, id ASC
	`

	rows, err := r.helper.Query(ctx, query)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var listed []persistence.Series
	for rows.Next() {
		series, err := scanSeriesRow(rows.Scan)
		if err != nil {
			return nil, mapStoreError(err)
		}
		listed = append(listed, series)
	}

	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}

	return listed, nil
}

// SoftDeleteSeries marks a series deleted without removing its rows
func (r *SeriesRepository) SoftDeleteSeries(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	query := `UPDATE series SET is_deleted = 1, updated_at = ? WHERE id = ? AND is_deleted = 0`

	result, err := r.helper.Exec(ctx, query, formatTime(time.Now()), id)
	if err != nil {
		return mapStoreError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// SplitSeries truncates the original series, inserts the new one, and
// re-parents exceptions at or after the pivot, all within one transaction
func (r *SeriesRepository) SplitSeries(ctx context.Context, truncated, created persistence.Series, pivot time.Time) error {
	if truncated.ID == "" || created.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		truncateQuery := `
			UPDATE series
			SET until_time = ?, updated_at = ?
			WHERE id = ?
		`

		result, err := r.helper.ExecTx(tx, truncateQuery,
			nullableTime(truncated.Until),
			formatTime(truncated.UpdatedAt),
			truncated.ID,
		)
		if err != nil {
			return mapStoreError(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}

		insertQuery := `
			INSERT INTO series (` + seriesColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := r.helper.ExecTx(tx, insertQuery, seriesArgs(created)...); err != nil {
			return mapStoreError(err)
		}

		reparentQuery := `
			UPDATE exceptions
			SET series_id = ?
			WHERE series_id = ? AND occurrence_start >= ?
		`
		if _, err := r.helper.ExecTx(tx, reparentQuery, created.ID, truncated.ID, formatTime(pivot)); err != nil {
			return mapStoreError(err)
		}

		return nil
	})
}

// PurgeDeletedSeries removes soft-deleted series last updated before the
// reference instant. Exceptions cascade via the foreign key.
func (r *SeriesRepository) PurgeDeletedSeries(ctx context.Context, before time.Time) (int, error) {
	query := `DELETE FROM series WHERE is_deleted = 1 AND updated_at < ?`

	result, err := r.helper.Exec(ctx, query, formatTime(before))
	if err != nil {
		return 0, mapStoreError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

func seriesArgs(series persistence.Series) []interface{} {
	return []interface{}{
		series.ID,
		series.Title,
		formatTime(series.Start),
		series.DurationMinutes,
		series.Frequency,
		series.Interval,
		encodeWeekdays(series.Weekdays),
		nullableTime(series.Until),
		series.Link,
		series.Notes,
		series.Location,
		series.Host,
		series.EventType,
		boolToInt(series.IsDeleted),
		formatTime(series.CreatedAt),
		formatTime(series.UpdatedAt),
	}
}

func scanSeriesRow(scan func(dest ...interface{}) error) (persistence.Series, error) {
	var series persistence.Series
	var startStr, createdAtStr, updatedAtStr string
	var untilStr sql.NullString
	var weekdayMask int64
	var isDeleted int

	err := scan(
		&series.ID,
		&series.Title,
		&startStr,
		&series.DurationMinutes,
		&series.Frequency,
		&series.Interval,
		&weekdayMask,
		&untilStr,
		&series.Link,
		&series.Notes,
		&series.Location,
		&series.Host,
		&series.EventType,
		&isDeleted,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return persistence.Series{}, err
	}

	series.Weekdays = decodeWeekdays(weekdayMask)
	series.IsDeleted = isDeleted != 0

	if series.Start, err = time.Parse(time.RFC3339, startStr); err != nil {
		return persistence.Series{}, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if untilStr.Valid {
		if series.Until, err = parseTimePtr(untilStr.String); err != nil {
			return persistence.Series{}, fmt.Errorf("failed to parse until_time: %w", err)
		}
	}
	if series.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Series{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if series.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return persistence.Series{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return series, nil
}

// mapStoreError maps SQLite errors to persistence sentinel errors
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	if containsAny(errStr, []string{"UNIQUE constraint failed"}) {
		return persistence.ErrDuplicate
	}
	if containsAny(errStr, []string{"FOREIGN KEY constraint failed"}) {
		return persistence.ErrForeignKeyViolation
	}
	if containsAny(errStr, []string{"CHECK constraint failed"}) {
		return persistence.ErrConstraintViolation
	}

	return err
}

func nullableTime(value *time.Time) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*value), Valid: true}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// parseTimePtr parses a time string and returns a pointer to the time
func parseTimePtr(timeStr string) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeWeekdays encodes weekdays as a bitmask for storage
func encodeWeekdays(weekdays []time.Weekday) int64 {
	var mask int64
	for _, day := range weekdays {
		if day >= time.Sunday && day <= time.Saturday {
			mask |= 1 << uint(day)
		}
	}
	return mask
}

// decodeWeekdays decodes weekdays from a bitmask
func decodeWeekdays(mask int64) []time.Weekday {
	var weekdays []time.Weekday
	for day := time.Sunday; day <= time.Saturday; day++ {
		if mask&(1<<uint(day)) != 0 {
			weekdays = append(weekdays, day)
		}
	}
	return weekdays
}
