package clickhouse

import (
	"context"
	"fmt"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// GridResultStore implements storage.GridResultStore using ClickHouse.
type GridResultStore struct {
	conn *Conn
}

// NewGridResultStore creates a new GridResultStore.
func NewGridResultStore(conn *Conn) *GridResultStore {
	return &GridResultStore{conn: conn}
}

// Compile-time interface check.
var _ storage.GridResultStore = (*GridResultStore)(nil)

// InsertBulk adds the evaluated grid of one or more runs. Fails entire
// batch on duplicate (run_id, grid_index).
func (s *GridResultStore) InsertBulk(ctx context.Context, rows []domain.GridResult) error {
	if len(rows) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		runID string
		index int
	}
	seen := make(map[key]struct{}, len(rows))
	runs := make(map[string]struct{})
	for _, r := range rows {
		if r.RunID == "" || r.GridIndex < 0 {
			return storage.Invalid(storage.KindGrid, "missing run id or grid index")
		}
		k := key{r.RunID, r.GridIndex}
		if _, exists := seen[k]; exists {
			return storage.Duplicate(storage.KindGrid, fmt.Sprintf("%s#%d", r.RunID, r.GridIndex))
		}
		seen[k] = struct{}{}
		runs[r.RunID] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for runID := range runs {
		existing, err := s.GetByRunID(ctx, runID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, r := range existing {
			if _, dup := seen[key{runID, r.GridIndex}]; dup {
				return storage.Duplicate(storage.KindGrid, fmt.Sprintf("%s#%d", runID, r.GridIndex))
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO grid_results (
			run_id, grid_index, entry_rule, stop_mode, target_multiple, filter_threshold,
			sample_size, wins, losses, win_rate, expectancy, unviable, eligible, selected
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.RunID, uint32(r.GridIndex),
			string(r.Params.EntryRule), string(r.Params.StopMode),
			r.Params.TargetMultiple, r.Params.FilterThreshold,
			uint32(r.SampleSize), uint32(r.Wins), uint32(r.Losses),
			r.WinRate, r.Expectancy, uint32(r.Unviable),
			boolToUInt8(r.Eligible), boolToUInt8(r.Selected),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves a run's grid, ordered by grid_index ASC.
func (s *GridResultStore) GetByRunID(ctx context.Context, runID string) ([]domain.GridResult, error) {
	query := `
		SELECT
			run_id, grid_index, entry_rule, stop_mode, target_multiple, filter_threshold,
			sample_size, wins, losses, win_rate, expectancy, unviable, eligible, selected
		FROM grid_results FINAL
		WHERE run_id = ?
		ORDER BY grid_index ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query grid by run id: %w", err)
	}
	defer rows.Close()

	return scanGridResults(rows)
}

// scanGridResults scans multiple rows.
func scanGridResults(rows chRows) ([]domain.GridResult, error) {
	var out []domain.GridResult

	for rows.Next() {
		var (
			r                                    domain.GridResult
			entryRule, stopMode                  string
			index, samples, wins, losses, unviab uint32
			eligible, selected                   uint8
		)
		err := rows.Scan(
			&r.RunID, &index, &entryRule, &stopMode, &r.Params.TargetMultiple, &r.Params.FilterThreshold,
			&samples, &wins, &losses, &r.WinRate, &r.Expectancy, &unviab, &eligible, &selected,
		)
		if err != nil {
			return nil, fmt.Errorf("scan grid result row: %w", err)
		}

		r.GridIndex = int(index)
		r.Params.EntryRule = domain.EntryRule(entryRule)
		r.Params.StopMode = domain.StopMode(stopMode)
		r.SampleSize = int(samples)
		r.Wins = int(wins)
		r.Losses = int(losses)
		r.Unviable = int(unviab)
		r.Eligible = eligible == 1
		r.Selected = selected == 1
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grid result rows: %w", err)
	}

	return out, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
