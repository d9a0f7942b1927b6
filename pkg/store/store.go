// Package store manages all SQLite persistence for momentra.
//
// SQLite in WAL mode is the single backing store for jobs, candidates, and
// tasks. Every mutating operation is an atomic read-modify-write: simple
// updates are guarded by a per-row revision counter, and multi-row commits
// (candidate -> task) run inside one transaction, so a conflict check always
// sees a consistent snapshot even with two browser tabs racing.
//
// Timestamps that participate in range queries (task start/end) are stored
// as fixed-width RFC 3339 UTC strings, which makes lexicographic comparison
// in SQL equal to chronological comparison.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
// All store write operations should use this to handle transient SQLite
// errors (BUSY, LOCKED, IOERR_SHORT_READ) under concurrent access.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id              TEXT PRIMARY KEY,
		owner           TEXT NOT NULL,
		raw_text        TEXT NOT NULL,
		user_local_time TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner, created_at);

	CREATE TABLE IF NOT EXISTS candidates (
		id           TEXT PRIMARY KEY,
		job_id       TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		description  TEXT NOT NULL,
		command_type TEXT NOT NULL,
		parameters   TEXT NOT NULL DEFAULT '{}',
		pos          INTEGER NOT NULL DEFAULT 0,
		rev          INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_job ON candidates(job_id, pos, id);

	CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		owner         TEXT NOT NULL,
		source_job_id TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		start_time    TEXT NOT NULL,
		end_time      TEXT NOT NULL,
		blocking      INTEGER NOT NULL DEFAULT 1,
		rev           INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner_start ON tasks(owner, start_time, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// utcString renders t as a fixed-width RFC 3339 UTC string (second
// precision). Fixed width keeps SQL string comparison chronological.
func utcString(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseUTC(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
