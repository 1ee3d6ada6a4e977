package postgres

import (
	"context"
	"fmt"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// ValidationRunStore implements storage.ValidationRunStore using PostgreSQL.
// Rows are append-only; the full record is kept in a JSONB column next to
// the indexed summary fields.
type ValidationRunStore struct {
	pool *Pool
}

// NewValidationRunStore creates a new ValidationRunStore.
func NewValidationRunStore(pool *Pool) *ValidationRunStore {
	return &ValidationRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ValidationRunStore = (*ValidationRunStore)(nil)

// Insert adds a completed run. Returns ErrDuplicateKey if run_id exists.
func (s *ValidationRunStore) Insert(ctx context.Context, run *domain.ValidationRun) error {
	if run == nil || run.RunID == "" {
		return storage.Invalid(storage.KindRun, "missing run id")
	}
	record, err := storage.EncodeRun(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO validation_runs (
			run_id, name, instrument, anchor_id, attempt, supersedes,
			verdict, failed_stage, failure_reason, data_version,
			started_at, completed_at, record
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = s.pool.Exec(ctx, query,
		run.RunID, run.Name, run.Instrument, run.AnchorID, run.Attempt, run.Supersedes,
		string(run.Verdict), string(run.FailedStage), run.FailureReason, run.DataVersion,
		run.StartedAt, run.CompletedAt, record,
	)
	return mapError(err, "insert", storage.KindRun, run.RunID)
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ValidationRunStore) GetByID(ctx context.Context, runID string) (*domain.ValidationRun, error) {
	var record []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM validation_runs WHERE run_id = $1`, runID).Scan(&record)
	if err != nil {
		return nil, mapError(err, "get", storage.KindRun, runID)
	}
	return storage.DecodeRun(record)
}

// Exists reports whether a run with the ID has been recorded.
func (s *ValidationRunStore) Exists(ctx context.Context, runID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM validation_runs WHERE run_id = $1)`, runID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check validation run: %w", err)
	}
	return exists, nil
}

// List retrieves all runs ordered by started_at, run_id.
func (s *ValidationRunStore) List(ctx context.Context) ([]*domain.ValidationRun, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM validation_runs ORDER BY started_at ASC, run_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list validation runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.ValidationRun
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan validation run row: %w", err)
		}
		run, err := storage.DecodeRun(record)
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
