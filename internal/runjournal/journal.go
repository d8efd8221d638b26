// Package runjournal persists a record of every handler run, including runs
// that failed before resolving, so operators can answer "what happened to
// that file" without digging through logs.
package runjournal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tideflow/internal/handler"
)

// Journal is the run history backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

// Entry is one journalled run.
type Entry struct {
	ID            int64
	HandlerID     string
	Pipeline      string
	InputFile     string
	InputChecksum string
	Result        string
	State         string
	Error         string
	FileCount     int
	ElapsedMillis int64
	RecordedAt    time.Time
}

// Open initialises or connects to the journal database in the given
// directory.
func Open(journalDir string) (*Journal, error) {
	dbPath := filepath.Join(journalDir, "runjournal.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	journal := &Journal{db: db, path: dbPath}
	if err := journal.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return journal, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    handler_id  TEXT NOT NULL,
    pipeline    TEXT NOT NULL,
    input_file  TEXT NOT NULL,
    checksum    TEXT NOT NULL DEFAULT '',
    result      TEXT NOT NULL,
    state       TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    file_count  INTEGER NOT NULL DEFAULT 0,
    elapsed_ms  INTEGER NOT NULL DEFAULT 0,
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_input_file ON runs (input_file);
CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs (pipeline, recorded_at)`)
	if err != nil {
		return fmt.Errorf("apply journal migrations: %w", err)
	}
	return nil
}

// Record persists the report of a finished run.
func (j *Journal) Record(ctx context.Context, report *handler.Report) error {
	fileCount := 0
	if report.Files != nil {
		fileCount = report.Files.Len()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO runs (handler_id, pipeline, input_file, checksum, result, state, error, file_count, elapsed_ms, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.HandlerID,
		report.Pipeline,
		report.InputFile,
		report.InputChecksum,
		report.Result.String(),
		report.State.String(),
		report.Error,
		fileCount,
		report.Elapsed.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, handler_id, pipeline, input_file, checksum, result, state, error, file_count, elapsed_ms, recorded_at
FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForInputFile returns every journalled run of the given input file, newest
// first.
func (j *Journal) ForInputFile(ctx context.Context, inputFile string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, handler_id, pipeline, input_file, checksum, result, state, error, file_count, elapsed_ms, recorded_at
FROM runs WHERE input_file = ? ORDER BY id DESC`, inputFile)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", inputFile, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.HandlerID, &e.Pipeline, &e.InputFile, &e.InputChecksum,
			&e.Result, &e.State, &e.Error, &e.FileCount, &e.ElapsedMillis, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			e.RecordedAt = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}
