package store

import (
	"database/sql"
	"fmt"

	"assistantcore/internal/logging"
)

// columnMigration adds one column to an existing table if it is missing.
// createSchema only creates missing tables, so new columns on tables that
// predate them are rolled out here with an additive ALTER TABLE, without a
// full table rebuild.
type columnMigration struct {
	table  string
	column string
	def    string
}

var pendingColumnMigrations = []columnMigration{
	{"facts", "fingerprint", "TEXT NOT NULL DEFAULT ''"},
	{"scheduled_tasks", "failure_count", "INTEGER NOT NULL DEFAULT 0"},
}

// runMigrations applies additive column migrations and records schema
// version history. Safe to call on every startup.
func runMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "runMigrations")
	defer timer.Stop()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	applied := 0
	for _, m := range pendingColumnMigrations {
		if !tableExists(db, m.table) {
			continue
		}
		if columnExists(db, m.table, m.column) {
			continue
		}
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
		if _, err := db.Exec(q); err != nil {
			logging.Get(logging.CategoryStore).Warn("migration failed %s.%s: %v", m.table, m.column, err)
			continue
		}
		applied++
	}

	if applied > 0 {
		if _, err := db.Exec(`INSERT INTO schema_versions (version) VALUES (?)`, len(pendingColumnMigrations)); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to record schema version: %v", err)
		}
	}

	logging.Get(logging.CategoryStore).Info("migrations complete: applied=%d", applied)
	return nil
}
