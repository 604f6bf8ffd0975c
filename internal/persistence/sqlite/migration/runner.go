package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Runner applies embedded migrations against a SQLite database, tracking
// applied versions in the schema_migrations table.
type Runner struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunner creates a migration runner for the given database handle.
func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, logger: logger}
}

// Run executes all pending migrations in sequential order. Each migration
// runs in its own transaction and is recorded on success; a failure aborts
// the sequence leaving earlier migrations applied.
func (r *Runner) Run(ctx context.Context, migrations []Migration) error {
	if err := r.initializeVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to initialize version table: %w", err)
	}

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied versions: %w", err)
	}

	if err := validateSequence(migrations, applied); err != nil {
		return fmt.Errorf("migration sequence validation failed: %w", err)
	}

	pending := pendingMigrations(migrations, applied)
	if len(pending) == 0 {
		r.logger.DebugContext(ctx, "database schema up to date", "version", currentVersion(applied))
		return nil
	}

	for _, migration := range pending {
		started := time.Now()

		if err := r.execute(ctx, migration); err != nil {
			return NewMigrationError(migration.Version, "execute",
				fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}

		executionTime := time.Since(started)
		if err := r.record(ctx, migration.Version, executionTime); err != nil {
			return NewMigrationError(migration.Version, "record", err)
		}

		r.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", executionTime,
		)
	}

	return nil
}

// GetStatus returns the current schema version and applied history.
func (r *Runner) GetStatus(ctx context.Context, migrations []Migration) (*Status, error) {
	if err := r.initializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize version table: %w", err)
	}

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied versions: %w", err)
	}

	return &Status{
		CurrentVersion:    currentVersion(applied),
		PendingCount:      len(pendingMigrations(migrations, applied)),
		AppliedMigrations: applied,
	}, nil
}

func (r *Runner) initializeVersionTable(ctx context.Context) error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			execution_time_ms INTEGER
		);
	`

	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError("", createTableSQL, "create schema_migrations table", err)
	}

	return nil
}

func (r *Runner) execute(ctx context.Context, migration Migration) error {
	if len(migration.Statements) == 0 {
		return NewMigrationError(migration.Version, "validate",
			fmt.Errorf("migration declares no statements"))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return NewDatabaseError(migration.Version, "", "begin transaction", err)
	}

	for i, stmt := range migration.Statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				r.logger.WarnContext(ctx, "migration rollback failed",
					"version", migration.Version, "error", rollbackErr)
			}
			return NewDatabaseError(migration.Version, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewDatabaseError(migration.Version, "", "commit transaction", err)
	}

	return nil
}

func (r *Runner) record(ctx context.Context, version string, executionTime time.Duration) error {
	insertSQL := `
		INSERT INTO schema_migrations (version, applied_at, execution_time_ms)
		VALUES (?, ?, ?)
	`

	appliedAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := r.db.ExecContext(ctx, insertSQL, version, appliedAt, executionTime.Milliseconds()); err != nil {
		return NewDatabaseError(version, insertSQL, "record migration", err)
	}

	return nil
}

func (r *Runner) appliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	querySQL := `
		SELECT version, applied_at, COALESCE(execution_time_ms, 0)
		FROM schema_migrations
		ORDER BY version ASC
	`

	rows, err := r.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, NewDatabaseError("", querySQL, "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var version, appliedAtStr string
		var executionTimeMs int64

		if err := rows.Scan(&version, &appliedAtStr, &executionTimeMs); err != nil {
			return nil, NewDatabaseError("", querySQL, "scan applied migration", err)
		}

		appliedAt, parseErr := time.Parse(time.RFC3339, appliedAtStr)
		if parseErr != nil {
			return nil, NewDatabaseError(version, querySQL, "parse applied_at",
				fmt.Errorf("%w: %v", ErrVersionTableCorrupt, parseErr))
		}

		applied = append(applied, AppliedMigration{
			Version:       version,
			AppliedAt:     appliedAt,
			ExecutionTime: time.Duration(executionTimeMs) * time.Millisecond,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", querySQL, "iterate applied migrations", err)
	}

	return applied, nil
}

func pendingMigrations(migrations []Migration, applied []AppliedMigration) []Migration {
	appliedSet := make(map[string]bool, len(applied))
	for _, migration := range applied {
		appliedSet[migration.Version] = true
	}

	var pending []Migration
	for _, migration := range migrations {
		if !appliedSet[migration.Version] {
			pending = append(pending, migration)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		versionI, _ := strconv.Atoi(pending[i].Version)
		versionJ, _ := strconv.Atoi(pending[j].Version)
		return versionI < versionJ
	})

	return pending
}

func currentVersion(applied []AppliedMigration) string {
	current := ""
	max := 0
	for _, migration := range applied {
		if version, err := strconv.Atoi(migration.Version); err == nil && version > max {
			max = version
			current = migration.Version
		}
	}
	return current
}

// validateSequence ensures versions are numeric, unique, gap-free, and that
// every applied version still has a corresponding declared migration.
func validateSequence(migrations []Migration, applied []AppliedMigration) error {
	if len(migrations) == 0 {
		return nil
	}

	versionSet := make(map[int]bool, len(migrations))
	minVersion, maxVersion := 0, 0
	for i, migration := range migrations {
		version, err := strconv.Atoi(migration.Version)
		if err != nil {
			return fmt.Errorf("%w: version %q is not numeric", ErrInvalidVersion, migration.Version)
		}
		if versionSet[version] {
			return fmt.Errorf("%w: version %s declared twice", ErrDuplicateVersion, migration.Version)
		}
		versionSet[version] = true
		if i == 0 || version < minVersion {
			minVersion = version
		}
		if version > maxVersion {
			maxVersion = version
		}
	}

	for version := minVersion; version <= maxVersion; version++ {
		if !versionSet[version] {
			return fmt.Errorf("%w: missing migration version %03d in sequence", ErrVersionConflict, version)
		}
	}

	for _, appliedMigration := range applied {
		version, err := strconv.Atoi(appliedMigration.Version)
		if err != nil {
			return fmt.Errorf("%w: applied version %q is not numeric", ErrVersionTableCorrupt, appliedMigration.Version)
		}
		if !versionSet[version] {
			return fmt.Errorf("%w: applied migration %03d has no declared migration", ErrVersionConflict, version)
		}
	}

	return nil
}
