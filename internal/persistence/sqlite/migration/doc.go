// Package migration provides a database migration system for SQLite databases.
//
// This package implements an embedded migration system that allows for
// versioned database schema changes. It supports:
//
//   - Sequential migration execution with version tracking
//   - Transactional migration execution with rollback on failure
//   - Migrations compiled into the binary, so the schema always ships with the code
//   - Sequence validation (numeric, unique, gap-free versions)
//
// The migration system maintains a schema_migrations table to track applied
// migrations and prevent duplicate execution.
//
// Example usage:
//
//	runner := NewRunner(db, logger)
//	if err := runner.Run(ctx, migrations); err != nil {
//		log.Fatalf("Migration failed: %v", err)
//	}
package migration
