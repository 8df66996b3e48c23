// Package db opens the sqlite database backing the lifecycle journal.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the journal database at path and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// runMigrations executes the database schema migrations.
func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		device_id TEXT NOT NULL DEFAULT '',
		tunnel TEXT NOT NULL DEFAULT '',
		conn_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_device ON events(device_id, tunnel);
	CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// NewTestDB creates a new in-memory database for testing.
func NewTestDB() (*sql.DB, error) {
	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	// Every pooled connection to :memory: is a separate database.
	testDB.SetMaxOpenConns(1)

	if err := runMigrations(testDB); err != nil {
		testDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return testDB, nil
}
