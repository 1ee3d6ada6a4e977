package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// OpeningRangeStore implements storage.OpeningRangeStore using PostgreSQL.
type OpeningRangeStore struct {
	pool *Pool
}

// NewOpeningRangeStore creates a new OpeningRangeStore.
func NewOpeningRangeStore(pool *Pool) *OpeningRangeStore {
	return &OpeningRangeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OpeningRangeStore = (*OpeningRangeStore)(nil)

const openingRangeColumns = `
	range_id, instrument, trade_date, anchor_id,
	window_start, window_end, valid_until,
	high, low, size, bar_count
`

// Insert adds a new range. Returns ErrDuplicateKey if range_id exists.
func (s *OpeningRangeStore) Insert(ctx context.Context, r *domain.OpeningRange) error {
	query := `
		INSERT INTO opening_ranges (` + openingRangeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RangeID, r.Instrument, r.Date, r.AnchorID,
		r.WindowStart, r.WindowEnd, r.ValidUntil,
		r.High, r.Low, r.Size, r.BarCount,
	)
	return mapError(err, "insert", storage.KindRange, r.RangeID)
}

// GetByID retrieves a range by its ID. Returns ErrNotFound if not exists.
func (s *OpeningRangeStore) GetByID(ctx context.Context, rangeID string) (*domain.OpeningRange, error) {
	query := `SELECT ` + openingRangeColumns + ` FROM opening_ranges WHERE range_id = $1`

	r, err := scanOpeningRange(s.pool.QueryRow(ctx, query, rangeID))
	if err != nil {
		return nil, mapError(err, "get", storage.KindRange, rangeID)
	}
	return r, nil
}

// GetByInstrument retrieves ranges whose date falls in dates.
func (s *OpeningRangeStore) GetByInstrument(ctx context.Context, instrument string, dates domain.DateRange) ([]*domain.OpeningRange, error) {
	query := `
		SELECT ` + openingRangeColumns + `
		FROM opening_ranges
		WHERE instrument = $1 AND trade_date >= $2 AND trade_date < $3
		ORDER BY trade_date ASC, anchor_id ASC
	`

	rows, err := s.pool.Query(ctx, query, instrument, dates.Start, dates.End)
	if err != nil {
		return nil, fmt.Errorf("get opening ranges by instrument: %w", err)
	}
	defer rows.Close()

	var out []*domain.OpeningRange
	for rows.Next() {
		r, err := scanOpeningRange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opening range row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opening range rows: %w", err)
	}
	return out, nil
}

// scanOpeningRange scans a single row. pgx.Rows satisfies pgx.Row.
func scanOpeningRange(row pgx.Row) (*domain.OpeningRange, error) {
	var r domain.OpeningRange
	err := row.Scan(
		&r.RangeID, &r.Instrument, &r.Date, &r.AnchorID,
		&r.WindowStart, &r.WindowEnd, &r.ValidUntil,
		&r.High, &r.Low, &r.Size, &r.BarCount,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
