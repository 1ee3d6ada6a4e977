// Package sqlite stores the validation-run audit trail in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// Schema is applied on open. Runs are append-only.
const Schema = `
CREATE TABLE IF NOT EXISTS validation_runs (
	run_id        TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	instrument    TEXT NOT NULL,
	anchor_id     TEXT NOT NULL,
	attempt       INTEGER NOT NULL,
	supersedes    TEXT NOT NULL DEFAULT '',
	verdict       TEXT NOT NULL,
	failed_stage  TEXT NOT NULL DEFAULT '',
	started_at    INTEGER NOT NULL,
	record        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_runs_started ON validation_runs (started_at, run_id);

CREATE TRIGGER IF NOT EXISTS validation_runs_no_update
BEFORE UPDATE ON validation_runs
BEGIN
	SELECT RAISE(ABORT, 'validation_runs is append-only');
END;

CREATE TRIGGER IF NOT EXISTS validation_runs_no_delete
BEFORE DELETE ON validation_runs
BEGIN
	SELECT RAISE(ABORT, 'validation_runs is append-only');
END;
`

// ValidationRunStore implements storage.ValidationRunStore on SQLite.
type ValidationRunStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ storage.ValidationRunStore = (*ValidationRunStore)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*ValidationRunStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &ValidationRunStore{db: db}, nil
}

// Close closes the database.
func (s *ValidationRunStore) Close() error {
	return s.db.Close()
}

// Insert adds a completed run. Returns ErrDuplicateKey if run_id exists.
func (s *ValidationRunStore) Insert(ctx context.Context, run *domain.ValidationRun) error {
	if run == nil || run.RunID == "" {
		return storage.Invalid(storage.KindRun, "missing run id")
	}
	record, err := storage.EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validation_runs
		(run_id, name, instrument, anchor_id, attempt, supersedes, verdict, failed_stage, started_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Name, run.Instrument, run.AnchorID, run.Attempt, run.Supersedes,
		string(run.Verdict), string(run.FailedStage), run.StartedAt.UnixNano(), string(record),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.Duplicate(storage.KindRun, run.RunID)
		}
		return fmt.Errorf("insert validation run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ValidationRunStore) GetByID(ctx context.Context, runID string) (*domain.ValidationRun, error) {
	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM validation_runs WHERE run_id = ?`, runID).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFound(storage.KindRun, runID)
		}
		return nil, fmt.Errorf("get validation run by id: %w", err)
	}
	return storage.DecodeRun([]byte(record))
}

// Exists reports whether a run with the ID has been recorded.
func (s *ValidationRunStore) Exists(ctx context.Context, runID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM validation_runs WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check validation run: %w", err)
	}
	return n > 0, nil
}

// List retrieves all runs ordered by started_at, run_id.
func (s *ValidationRunStore) List(ctx context.Context) ([]*domain.ValidationRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM validation_runs ORDER BY started_at ASC, run_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list validation runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.ValidationRun
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan validation run row: %w", err)
		}
		run, err := storage.DecodeRun([]byte(record))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation run rows: %w", err)
	}
	return runs, nil
}

func isDuplicateKeyError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
