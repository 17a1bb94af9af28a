// Package store is the Persistence Store: a single SQLite-backed database
// holding sessions, episodes, summaries, facts, and scheduled tasks. All
// writes go through one connection (SetMaxOpenConns(1)) behind WAL journal
// mode, matching the single-writer-many-reader shape SQLite is built for.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"assistantcore/internal/logging"
)

// Store wraps the database connection and schema lifecycle.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open creates the directory for path if needed, opens the database,
// applies pragmas, and runs schema creation plus migrations.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryStore).Warn("pragma failed %q: %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logging.Get(logging.CategoryStore).Info("store opened at %s", path)
	return s, nil
}

// DB exposes the underlying connection. No package in this module calls it;
// facts and semantic reach the database through Store's methods.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	logging.Get(logging.CategoryStore).Info("closing store")
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error including a panic recovered and re-raised.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &Error{Kind: Unavailable, Op: "begin", Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &Error{Kind: Unavailable, Op: "commit", Err: err}
	}
	return nil
}
