package sqlite

import (
	"context"
	"log/slog"

	"github.com/example/recurring-calendar/internal/persistence/sqlite/migration"
)

// Migrate brings the database schema up to date.
func Migrate(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) error {
	runner := migration.NewRunner(pool.DB(), logger)
	return runner.Run(ctx, schemaMigrations())
}

// schemaMigrations declares the full schema history. Versions are applied in
// order and recorded in schema_migrations; never edit a shipped migration,
// append a new one instead.
func schemaMigrations() []migration.Migration {
	return []migration.Migration{
		{
			Version:     "001",
			Description: "create series and exceptions tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS series (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					start_time TEXT NOT NULL,
					duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
					frequency TEXT NOT NULL,
					interval_value INTEGER NOT NULL DEFAULT 1 CHECK (interval_value > 0),
					weekdays INTEGER NOT NULL DEFAULT 0,
					until_time TEXT,
					link TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT '',
					location TEXT NOT NULL DEFAULT '',
					host TEXT NOT NULL DEFAULT '',
					event_type TEXT NOT NULL,
					is_deleted INTEGER NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS exceptions (
					id TEXT PRIMARY KEY,
					series_id TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
					occurrence_start TEXT NOT NULL,
					deleted INTEGER NOT NULL DEFAULT 0,
					override_start TEXT,
					override_duration_minutes INTEGER CHECK (override_duration_minutes IS NULL OR override_duration_minutes > 0),
					override_title TEXT,
					override_link TEXT,
					override_notes TEXT,
					override_location TEXT,
					override_host TEXT,
					override_event_type TEXT,
					created_at TEXT NOT NULL,
					UNIQUE (series_id, occurrence_start)
				)`,
			},
		},
		{
			Version:     "002",
			Description: "add lookup indexes",
			Statements: []string{
				`CREATE INDEX IF NOT EXISTS idx_series_active ON series (is_deleted, start_time)`,
				`CREATE INDEX IF NOT EXISTS idx_exceptions_series ON exceptions (series_id, occurrence_start)`,
				`CREATE INDEX IF NOT EXISTS idx_exceptions_override_start ON exceptions (series_id, override_start)`,
			},
		},
	}
}
