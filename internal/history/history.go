// Package history keeps a SQLite ledger of orchestrator runs: what changed,
// which commands ran and how they ended, and whether the manifest was
// committed.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                 TEXT PRIMARY KEY,
	started_at         TEXT NOT NULL,
	duration_ms        INTEGER NOT NULL,
	mode               TEXT NOT NULL,
	source_root        TEXT NOT NULL,
	new_files          INTEGER NOT NULL,
	changed_files      INTEGER NOT NULL,
	deleted_files      INTEGER NOT NULL,
	unchanged_files    INTEGER NOT NULL,
	exit_code          INTEGER NOT NULL,
	manifest_committed INTEGER NOT NULL,
	manifest_digest    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS actions (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	artifact    TEXT NOT NULL,
	stage       INTEGER NOT NULL,
	command     TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	exit_code   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one orchestrator invocation.
type Run struct {
	ID                string
	StartedAt         time.Time
	Duration          time.Duration
	Mode              string
	SourceRoot        string
	NewFiles          int
	ChangedFiles      int
	DeletedFiles      int
	UnchangedFiles    int
	ExitCode          int
	ManifestCommitted bool
	ManifestDigest    string
	Actions           []Action
}

// Action is one executed (or dry-run) rebuild command.
type Action struct {
	Artifact string
	Stage    int
	Command  string
	Outcome  string
	ExitCode int
	Duration time.Duration
}

// Store is the ledger. It is safe for use by one process at a time.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a run and its actions in one transaction. An empty ID is
// replaced by a fresh UUID, which is returned.
func (s *Store) Record(ctx context.Context, r *Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, started_at, duration_ms, mode, source_root, new_files, changed_files, deleted_files,
		 unchanged_files, exit_code, manifest_committed, manifest_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(timeLayout), r.Duration.Milliseconds(), r.Mode, r.SourceRoot,
		r.NewFiles, r.ChangedFiles, r.DeletedFiles, r.UnchangedFiles,
		r.ExitCode, boolToInt(r.ManifestCommitted), r.ManifestDigest,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO actions
		(run_id, seq, artifact, stage, command, outcome, exit_code, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare action insert: %w", err)
	}
	defer stmt.Close()
	for i, a := range r.Actions {
		if _, err := stmt.ExecContext(ctx, r.ID, i, a.Artifact, a.Stage, a.Command, a.Outcome, a.ExitCode, a.Duration.Milliseconds()); err != nil {
			return "", fmt.Errorf("insert action %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return r.ID, nil
}

// List returns the most recent runs, newest first, with their actions.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, duration_ms, mode, source_root,
		new_files, changed_files, deleted_files, unchanged_files, exit_code, manifest_committed, manifest_digest
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			durationMS int64
			committed  int
		)
		if err := rows.Scan(&r.ID, &startedAt, &durationMS, &r.Mode, &r.SourceRoot,
			&r.NewFiles, &r.ChangedFiles, &r.DeletedFiles, &r.UnchangedFiles,
			&r.ExitCode, &committed, &r.ManifestDigest); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("run %s has a bad timestamp: %w", r.ID, err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.ManifestCommitted = committed != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range runs {
		actions, err := s.actions(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Actions = actions
	}
	return runs, nil
}

func (s *Store) actions(ctx context.Context, runID string) ([]Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT artifact, stage, command, outcome, exit_code, duration_ms
		FROM actions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var (
			a          Action
			durationMS int64
		)
		if err := rows.Scan(&a.Artifact, &a.Stage, &a.Command, &a.Outcome, &a.ExitCode, &durationMS); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
