// Package history persists run summaries to SQLite so past ingestions can
// be inspected without grepping the audit log.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; the database can be deleted and will be recreated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const timeLayout = "2006-01-02 15:04:05.000000"

// Run is one row of the runs table.
type Run struct {
	ID            int64
	ExecutionGUID string
	ParentGUID    string
	StartedAt     time.Time
	FinishedAt    time.Time
	Destination   string
	Success       bool
	Sources       int
	Promoted      int
	Quarantined   int
	Empty         int
	Failed        int
	RowsWritten   int
}

// FolderRecord is the persisted per-source outcome of a run.
type FolderRecord struct {
	Source      string
	Status      string
	Promoted    int
	Quarantined int
	Empty       int
	Failed      int
	RowsWritten int
	Detail      string
}

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
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

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// RecordRun persists a run summary and its per-source results in one
// transaction. Returns the run's row id.
func (s *Store) RecordRun(ctx context.Context, run Run, folders []FolderRecord) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO runs (
	execution_guid, parent_guid, started_at, finished_at, destination,
	success, sources, promoted, quarantined, empty_files, failed, rows_written
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ExecutionGUID, run.ParentGUID,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Destination, boolToInt(run.Success), run.Sources,
		run.Promoted, run.Quarantined, run.Empty, run.Failed, run.RowsWritten,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for _, f := range folders {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO folder_results (
	run_id, source, status, promoted, quarantined, empty_files, failed, rows_written, detail
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, f.Source, f.Status, f.Promoted, f.Quarantined, f.Empty, f.Failed, f.RowsWritten, f.Detail,
		); err != nil {
			return 0, fmt.Errorf("insert folder result for %s: %w", f.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first, capped at limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, execution_guid, parent_guid, started_at, finished_at, destination,
	success, sources, promoted, quarantined, empty_files, failed, rows_written
FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			started, finished string
			success           int
		)
		if err := rows.Scan(&run.ID, &run.ExecutionGUID, &run.ParentGUID, &started, &finished,
			&run.Destination, &success, &run.Sources, &run.Promoted, &run.Quarantined,
			&run.Empty, &run.Failed, &run.RowsWritten); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Success = success != 0
		if t, err := time.Parse(timeLayout, started); err == nil {
			run.StartedAt = t
		}
		if t, err := time.Parse(timeLayout, finished); err == nil {
			run.FinishedAt = t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListFolderResults returns the per-source results of one run.
func (s *Store) ListFolderResults(ctx context.Context, runID int64) ([]FolderRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT source, status, promoted, quarantined, empty_files, failed, rows_written, detail
FROM folder_results WHERE run_id = ? ORDER BY source`, runID)
	if err != nil {
		return nil, fmt.Errorf("query folder results: %w", err)
	}
	defer rows.Close()

	var folders []FolderRecord
	for rows.Next() {
		var f FolderRecord
		if err := rows.Scan(&f.Source, &f.Status, &f.Promoted, &f.Quarantined, &f.Empty,
			&f.Failed, &f.RowsWritten, &f.Detail); err != nil {
			return nil, fmt.Errorf("scan folder result: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folder results: %w", err)
	}
	return folders, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
