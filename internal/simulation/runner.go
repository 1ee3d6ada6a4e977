package simulation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"breakout-lab/internal/cost"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/ranges"
	"breakout-lab/internal/storage"
)

// Runner simulates stored bars end to end and persists the results.
type Runner struct {
	model        *cost.Model
	barStore     storage.BarStore
	rangeStore   storage.OpeningRangeStore
	outcomeStore storage.TradeOutcomeStore
	opts         Options
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Model        *cost.Model
	BarStore     storage.BarStore
	RangeStore   storage.OpeningRangeStore // optional
	OutcomeStore storage.TradeOutcomeStore // optional
	Simulation   Options
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		model:        opts.Model,
		barStore:     opts.BarStore,
		rangeStore:   opts.RangeStore,
		outcomeStore: opts.OutcomeStore,
		opts:         opts.Simulation,
	}
}

// RunSummary describes one Runner.Run.
type RunSummary struct {
	Instrument string
	Dates      domain.DateRange
	Bars       int
	Ranges     []domain.OpeningRange
	Signals    []domain.BreakoutSignal
	Batch      *Batch
	Stats      domain.OutcomeStats
	Persisted  int // outcomes newly written
}

// Run simulates one parameter combination over stored bars.
// Steps:
//  1. Resolve the instrument spec (allowlist)
//  2. Load bars for the dates in the exchange timezone
//  3. Build opening ranges and persist them
//  4. Detect breakouts
//  5. Simulate every signal
//  6. Persist realized outcomes
//
// Records already stored are skipped, so re-running is idempotent.
func (r *Runner) Run(ctx context.Context, instrument string, dates domain.DateRange, anchors []domain.AnchorWindow, p domain.TradeParams) (*RunSummary, error) {
	// 1. Resolve the instrument spec
	spec, err := r.model.Spec(instrument)
	if err != nil {
		return nil, err
	}
	loc, err := spec.Location()
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// 2. Load bars
	days := dates.In(loc)
	bars, err := r.barStore.GetRange(ctx, instrument, days.Start, days.End)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no %s bars in %s", domain.ErrInsufficientData, instrument, days)
	}
	series, err := domain.NewBarSeries(instrument, bars)
	if err != nil {
		return nil, err
	}

	// 3. Build opening ranges
	builder := ranges.NewBuilder(series, loc)
	seq, err := builder.Build(instrument, days, anchors)
	if err != nil {
		return nil, err
	}
	built := ranges.Collect(seq)
	for i := range built {
		if err := insertRange(ctx, r.rangeStore, &built[i]); err != nil {
			return nil, err
		}
	}

	// 4. Detect breakouts
	signals := slices.Collect(builder.Signals(slices.Values(built)))

	// 5. Simulate
	batch, err := New(r.model, series, r.opts).SimulateAll(ctx, signals, p)
	if err != nil {
		return nil, err
	}

	// 6. Persist outcomes
	persisted, err := InsertOutcomes(ctx, r.outcomeStore, batch.Outcomes)
	if err != nil {
		return nil, err
	}

	return &RunSummary{
		Instrument: instrument,
		Dates:      days,
		Bars:       series.Len(),
		Ranges:     built,
		Signals:    signals,
		Batch:      batch,
		Stats:      batch.Stats(),
		Persisted:  persisted,
	}, nil
}

func insertRange(ctx context.Context, store storage.OpeningRangeStore, rng *domain.OpeningRange) error {
	if store == nil {
		return nil
	}
	if err := store.Insert(ctx, rng); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("persist range %s: %w", rng.RangeID, err)
	}
	return nil
}

// InsertOutcomes appends outcomes, skipping ones already stored.
// Returns the number newly written. A nil store writes nothing.
func InsertOutcomes(ctx context.Context, store storage.TradeOutcomeStore, outcomes []domain.RealizedOutcome) (int, error) {
	if store == nil {
		return 0, nil
	}
	n := 0
	for i := range outcomes {
		err := store.Insert(ctx, &outcomes[i])
		switch {
		case err == nil:
			n++
		case errors.Is(err, storage.ErrDuplicateKey):
		default:
			return n, fmt.Errorf("persist outcome %s: %w", outcomes[i].TradeID, err)
		}
	}
	return n, nil
}
