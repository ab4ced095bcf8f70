// ABOUTME: Core SQLite store for the tabulator server.
// ABOUTME: Handles database initialization, schema migrations, and connection management.

package store

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Wrap returns a Store over an already migrated database.
func Wrap(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection for grid sources
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// migration is one schema step. Its statements run in a single transaction
// together with the version record.
type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{1, "Create request_logs table and indexes", []string{
		`CREATE TABLE IF NOT EXISTS request_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			grid_name TEXT DEFAULT '',
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			status_code INTEGER,
			duration_ms INTEGER,
			user_id TEXT,
			ip_address TEXT,
			user_agent TEXT,
			request_body TEXT,
			response_body TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_path ON request_logs(path)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_status ON request_logs(status_code)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_grid ON request_logs(grid_name)`,
	}},
	{2, "Add composite indexes for aggregation and filtering queries", []string{
		`CREATE INDEX IF NOT EXISTS idx_request_logs_path_count ON request_logs(path, status_code)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_grid_timestamp ON request_logs(grid_name, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_grid_method_status ON request_logs(grid_name, method, status_code)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_user_id ON request_logs(user_id) WHERE user_id != ''`,
	}},
	// The two default languages match the default locale mapping.
	{3, "Create languages and users tables", []string{
		`CREATE TABLE IF NOT EXISTS languages (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			name TEXT PRIMARY KEY,
			roles TEXT NOT NULL DEFAULT '',
			language_id INTEGER REFERENCES languages(id) ON DELETE SET NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT OR IGNORE INTO languages (id, name, title) VALUES (1, 'default', 'English')`,
		`INSERT OR IGNORE INTO languages (id, name, title) VALUES (2, 'de', 'Deutsch')`,
	}},
	// Grid responses are always 200, so failures are tracked by the
	// envelope error and the action that produced it.
	{4, "Track grid actions and envelope errors", []string{
		`ALTER TABLE request_logs ADD COLUMN action TEXT DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_grid_action ON request_logs(grid_name, action)`,
	}},
}

// CurrentSchemaVersion is the target version for the database schema
var CurrentSchemaVersion = migrations[len(migrations)-1].version

// migrate runs all pending migrations
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := s.getCurrentMigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	log.Printf("Database schema version: %d, target version: %d", current, CurrentSchemaVersion)

	for _, m := range migrations {
		if current >= m.version {
			continue
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}
		log.Printf("Applied migration v%d: %s", m.version, m.description)
	}
	return nil
}

func (s *Store) getCurrentMigrationVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	return version, err
}

func (s *Store) apply(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`, m.version, m.description); err != nil {
		return err
	}
	return tx.Commit()
}
