package migration

import "time"

// Migration represents a database migration with its metadata and SQL content.
// Migrations are compiled into the binary rather than loaded from disk, so the
// schema always matches the code that uses it.
type Migration struct {
	Version     string   // Version identifier (e.g., "001", "002")
	Description string   // Human-readable description of the migration
	Statements  []string // SQL statements to execute in order
}

// AppliedMigration represents a migration that has been successfully applied
type AppliedMigration struct {
	Version       string        // Migration version
	AppliedAt     time.Time     // When the migration was applied
	ExecutionTime time.Duration // How long the migration took to execute
}

// Status provides information about the current migration state
type Status struct {
	CurrentVersion    string             // Latest applied migration version
	PendingCount      int                // Number of pending migrations
	AppliedMigrations []AppliedMigration // List of applied migrations
}
