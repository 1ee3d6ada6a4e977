package storage

import (
	"context"
	"time"

	"breakout-lab/internal/domain"
)

// BarStore provides access to price_bars storage.
type BarStore interface {
	// InsertBulk adds multiple bars atomically. Fails entire batch on any duplicate
	// (instrument, timestamp).
	InsertBulk(ctx context.Context, bars []domain.PriceBar) error

	// GetRange retrieves bars for an instrument within [start, end), ordered by timestamp ASC.
	GetRange(ctx context.Context, instrument string, start, end time.Time) ([]domain.PriceBar, error)

	// Instruments returns the distinct instruments with stored bars, sorted.
	Instruments(ctx context.Context) ([]string, error)
}

// OpeningRangeStore provides access to opening_ranges storage.
type OpeningRangeStore interface {
	// Insert adds a new range. Returns ErrDuplicateKey if range_id exists.
	Insert(ctx context.Context, r *domain.OpeningRange) error

	// GetByID retrieves a range by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, rangeID string) (*domain.OpeningRange, error)

	// GetByInstrument retrieves ranges whose date falls in dates,
	// ordered by date ASC, anchor_id ASC.
	GetByInstrument(ctx context.Context, instrument string, dates domain.DateRange) ([]*domain.OpeningRange, error)
}

// TradeOutcomeStore provides access to trade_outcomes storage.
type TradeOutcomeStore interface {
	// Insert adds a new outcome. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, o *domain.RealizedOutcome) error

	// GetByID retrieves an outcome by trade ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.RealizedOutcome, error)

	// GetByParams retrieves outcomes for an instrument and parameter combination,
	// ordered by entry_time ASC, trade_id ASC.
	GetByParams(ctx context.Context, instrument string, params domain.TradeParams) ([]*domain.RealizedOutcome, error)

	// GetAll retrieves all outcomes, ordered by entry_time ASC, trade_id ASC.
	GetAll(ctx context.Context) ([]*domain.RealizedOutcome, error)
}

// ValidationRunStore provides access to validation_runs storage.
type ValidationRunStore interface {
	// Insert adds a completed run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.ValidationRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.ValidationRun, error)

	// Exists reports whether a run with the ID has been recorded.
	Exists(ctx context.Context, runID string) (bool, error)

	// List retrieves all runs ordered by started_at ASC, run_id ASC.
	List(ctx context.Context) ([]*domain.ValidationRun, error)
}

// GridResultStore provides access to grid_results storage.
type GridResultStore interface {
	// InsertBulk adds the evaluated grid of one run atomically.
	// Fails entire batch on any duplicate (run_id, grid_index).
	InsertBulk(ctx context.Context, rows []domain.GridResult) error

	// GetByRunID retrieves a run's grid, ordered by grid_index ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.GridResult, error)
}
