package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by the repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			filename TEXT NOT NULL,
			mod_time TEXT NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);`,
		`CREATE TABLE IF NOT EXISTS links (
			url TEXT PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			built_at TEXT NOT NULL,
			backend TEXT NOT NULL,
			documents INTEGER NOT NULL,
			empty_documents INTEGER NOT NULL,
			extraction_failures INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			links INTEGER NOT NULL,
			chunker_version TEXT NOT NULL,
			index_version TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// timeFormat is how timestamps are stored in TEXT columns.
const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Try SQLite DATETIME format
		return time.Parse("2006-01-02 15:04:05", s)
	}
	return t, nil
}
