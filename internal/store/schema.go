package store

import (
	"database/sql"
	"fmt"

	"assistantcore/internal/logging"
)

// createSchema creates every table this module needs, if missing. Tables
// are additive-only: existing databases gain new tables but never lose
// columns here (see migrations.go for column-level changes to existing
// tables).
func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			exchange_number INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			user_text TEXT NOT NULL,
			agent_text TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			importance REAL NOT NULL DEFAULT 0,
			in_buffer BOOLEAN NOT NULL DEFAULT 1,
			summarized BOOLEAN NOT NULL DEFAULT 0,
			compression_level INTEGER NOT NULL DEFAULT 0,
			facts_extracted BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE(session_id, exchange_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_session ON episodes(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_in_buffer ON episodes(in_buffer)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_summarized ON episodes(summarized)`,

		`CREATE TABLE IF NOT EXISTS summaries (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			source_episode_ids TEXT NOT NULL DEFAULT '[]',
			importance REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_session ON summaries(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_type ON summaries(type)`,

		`CREATE TABLE IF NOT EXISTS session_summaries (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			opening_episode_id TEXT NOT NULL,
			closing_episode_id TEXT NOT NULL,
			key_exchanges TEXT NOT NULL DEFAULT '[]',
			key_points TEXT NOT NULL DEFAULT '[]',
			insights TEXT NOT NULL DEFAULT '[]',
			progress_made TEXT NOT NULL DEFAULT '[]',
			topics TEXT NOT NULL DEFAULT '[]',
			decisions TEXT NOT NULL DEFAULT '[]',
			unfinished_threads TEXT NOT NULL DEFAULT '[]',
			technical_solutions TEXT NOT NULL DEFAULT '[]',
			trust_indicators TEXT NOT NULL DEFAULT '[]',
			collaboration_patterns TEXT NOT NULL DEFAULT '[]',
			communication_style TEXT NOT NULL DEFAULT '',
			timestamp_start DATETIME NOT NULL,
			timestamp_end DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_summaries_session ON session_summaries(session_id)`,

		`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			importance REAL NOT NULL DEFAULT 0,
			access_count INTEGER NOT NULL DEFAULT 0,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_access DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			session_id TEXT NOT NULL DEFAULT '',
			episode_id TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			fingerprint TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_type ON facts(type)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_fingerprint ON facts(type, fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_importance ON facts(importance)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_timestamp ON facts(timestamp)`,

		`CREATE TABLE IF NOT EXISTS semantic_entries (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			embedding BLOB NOT NULL,
			importance REAL NOT NULL DEFAULT 0,
			access_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_access DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_hash ON semantic_entries(content_hash)`,

		`CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			schedule_expression TEXT NOT NULL,
			template_name TEXT NOT NULL,
			template_config TEXT NOT NULL DEFAULT '{}',
			enabled BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_run DATETIME,
			next_run DATETIME,
			run_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_enabled ON scheduled_tasks(enabled)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_next_run ON scheduled_tasks(next_run)`,

		`CREATE TABLE IF NOT EXISTS task_executions (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			success BOOLEAN NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			duration_seconds REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_task ON task_executions(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_completed ON task_executions(completed_at)`,

		`CREATE TABLE IF NOT EXISTS config_kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("tableExists(%s): %v", table, err)
		return false
	}
	return count > 0
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
