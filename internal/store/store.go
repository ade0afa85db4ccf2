// Package store persists documents, pages, jobs, and versioned
// structured records in an embedded sqlite database. Records are
// append-only: a document's versions are strictly increasing and
// gap-free, and existing versions are never modified.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// PersistenceError wraps a storage failure so callers can distinguish
// it from capability and validation failures.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the sqlite-backed persistence layer.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	patient_id   TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	page_count   INTEGER NOT NULL,
	status       TEXT NOT NULL,
	ingested_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_patient ON documents(patient_id, ingested_at);

CREATE TABLE IF NOT EXISTS pages (
	document_id  TEXT NOT NULL REFERENCES documents(id),
	page_no      INTEGER NOT NULL,
	path         TEXT NOT NULL,
	width        INTEGER NOT NULL,
	height       INTEGER NOT NULL,
	PRIMARY KEY (document_id, page_no)
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL REFERENCES documents(id),
	stage         TEXT NOT NULL,
	state         TEXT NOT NULL,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT NOT NULL DEFAULT '',
	version       INTEGER,
	created_at    TIMESTAMP NOT NULL,
	started_at    TIMESTAMP,
	finished_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_document ON jobs(document_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);

CREATE TABLE IF NOT EXISTS records (
	document_id        TEXT NOT NULL REFERENCES documents(id),
	version            INTEGER NOT NULL,
	overall_confidence REAL NOT NULL,
	validation_flags   TEXT NOT NULL DEFAULT '',
	unmapped_regions   INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL,
	PRIMARY KEY (document_id, version)
);

CREATE TABLE IF NOT EXISTS record_fields (
	document_id    TEXT NOT NULL,
	version        INTEGER NOT NULL,
	field          TEXT NOT NULL,
	region_id      TEXT NOT NULL,
	page_no        INTEGER NOT NULL,
	x1             INTEGER NOT NULL,
	y1             INTEGER NOT NULL,
	x2             INTEGER NOT NULL,
	y2             INTEGER NOT NULL,
	detector_label TEXT NOT NULL,
	detector_conf  REAL NOT NULL,
	raw_text       TEXT NOT NULL,
	normalized     TEXT,
	numeric_value  REAL,
	unit           TEXT NOT NULL DEFAULT '',
	ocr_conf       REAL NOT NULL,
	PRIMARY KEY (document_id, version, field),
	FOREIGN KEY (document_id, version) REFERENCES records(document_id, version)
);

CREATE TABLE IF NOT EXISTS capability_calls (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	provider    TEXT NOT NULL,
	operation   TEXT NOT NULL,
	document_id TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	called_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_capability_calls_provider ON capability_calls(provider, called_at);
`

// Open opens (and if necessary creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for auxiliary readers (metrics queries).
func (s *Store) DB() *sql.DB {
	return s.db
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isBusyError reports whether err is a transient sqlite contention error.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
