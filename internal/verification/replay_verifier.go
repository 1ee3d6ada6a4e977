package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breakout-lab/internal/cost"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/ranges"
	"breakout-lab/internal/simulation"
	"breakout-lab/internal/storage"
)

var (
	// ErrTradeNotFound is returned when trade ID doesn't exist.
	ErrTradeNotFound = errors.New("trade not found")

	// ErrRangeNotFound is returned when the outcome's range is not stored.
	ErrRangeNotFound = errors.New("range not found")
)

// ReplayVerifier implements Verifier interface.
type ReplayVerifier struct {
	outcomeStore storage.TradeOutcomeStore
	rangeStore   storage.OpeningRangeStore
	barStore     storage.BarStore
	model        *cost.Model
	simOpts      simulation.Options
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
// Simulation must match the options the outcomes were produced with.
type ReplayVerifierOptions struct {
	OutcomeStore storage.TradeOutcomeStore
	RangeStore   storage.OpeningRangeStore
	BarStore     storage.BarStore
	Model        *cost.Model
	Simulation   simulation.Options
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		outcomeStore: opts.OutcomeStore,
		rangeStore:   opts.RangeStore,
		barStore:     opts.BarStore,
		model:        opts.Model,
		simOpts:      opts.Simulation,
	}
}

var _ Verifier = (*ReplayVerifier)(nil)

// VerifyTrade verifies a single trade by replaying simulation.
func (v *ReplayVerifier) VerifyTrade(ctx context.Context, tradeID string) (*VerificationResult, error) {
	// 1. Load stored outcome
	stored, err := v.outcomeStore.GetByID(ctx, tradeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return v.verify(ctx, stored)
}

func (v *ReplayVerifier) verify(ctx context.Context, stored *domain.RealizedOutcome) (*VerificationResult, error) {
	// 2. Replay simulation
	rebuilt, replayed, err := v.replay(ctx, stored)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		TradeID: stored.TradeID,
		StoredR: stored.RMultiple,
	}

	// 3. Compare results
	result.Divergences = rebuilt
	if replayed != nil {
		result.Divergences = append(result.Divergences, CompareOutcomes(stored, replayed)...)
		result.ReplayedR = replayed.RMultiple
	}
	result.Match = len(result.Divergences) == 0
	return result, nil
}

// VerifyAll verifies all stored outcomes.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	outcomes, err := v.outcomeStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalTrades: len(outcomes),
		Results:     make([]VerificationResult, 0, len(outcomes)),
	}

	for _, o := range outcomes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := v.verify(ctx, o)
		if err != nil {
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				TradeID: o.TradeID,
				Match:   false,
				StoredR: o.RMultiple,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentTrades++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedTrades++
		} else {
			report.DivergentTrades++
		}
	}

	return report, nil
}

// replay rebuilds the outcome's range from stored bars and re-simulates it.
// It returns the range divergences and the replayed outcome, which is nil
// when the replay no longer reaches a terminal trade (reported as a
// Result divergence).
func (v *ReplayVerifier) replay(ctx context.Context, stored *domain.RealizedOutcome) ([]FieldDivergence, *domain.RealizedOutcome, error) {
	// 1. Load range
	rng, err := v.rangeStore.GetByID(ctx, stored.RangeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrRangeNotFound, stored.RangeID)
		}
		return nil, nil, err
	}

	// 2. Resolve instrument
	spec, err := v.model.Spec(stored.Instrument)
	if err != nil {
		return nil, nil, err
	}
	loc, err := spec.Location()
	if err != nil {
		return nil, nil, err
	}

	// 3. Load bars from window start through the exit bar. The trade never
	// looked past its exit, so this span reproduces it.
	end := rng.ValidUntil
	if stored.ExitTime.After(end) {
		end = stored.ExitTime
	}
	bars, err := v.barStore.GetRange(ctx, stored.Instrument, rng.WindowStart, end.Add(time.Nanosecond))
	if err != nil {
		return nil, nil, fmt.Errorf("load bars: %w", err)
	}
	series, err := domain.NewBarSeries(stored.Instrument, bars)
	if err != nil {
		return nil, nil, err
	}

	// 4. Rebuild the range
	anchor := anchorOf(rng, loc)
	day := rng.Date.In(loc)
	seq, err := ranges.NewBuilder(series, loc).Build(stored.Instrument,
		domain.DateRange{Start: day, End: day.AddDate(0, 0, 1)}, []domain.AnchorWindow{anchor})
	if err != nil {
		return nil, nil, err
	}
	rebuiltRanges := ranges.Collect(seq)
	if len(rebuiltRanges) != 1 {
		return nil, nil, fmt.Errorf("%w: no bars in window of range %s", domain.ErrInsufficientData, rng.RangeID)
	}
	rebuilt := rebuiltRanges[0]
	rangeDiv := CompareRanges(rng, &rebuilt)

	// 5. Re-simulate
	res, err := simulation.New(v.model, series, v.simOpts).Simulate(ranges.Detect(series, rebuilt), stored.Params)
	if err != nil {
		return nil, nil, err
	}

	switch r := res.(type) {
	case simulation.Realized:
		return rangeDiv, &r.Outcome, nil
	case simulation.Unviable:
		return rangeDiv, &r.Outcome, nil
	default:
		status := r.Trade().Status
		return append(rangeDiv, FieldDivergence{
			Field:    "Result",
			Expected: string(stored.Outcome),
			Actual:   string(status),
		}), nil, nil
	}
}

// anchorOf recovers the anchor window that produced r.
func anchorOf(r *domain.OpeningRange, loc *time.Location) domain.AnchorWindow {
	start := r.WindowStart.In(loc)
	return domain.AnchorWindow{
		ID:          r.AnchorID,
		StartHour:   start.Hour(),
		StartMinute: start.Minute(),
		Duration:    r.WindowEnd.Sub(r.WindowStart),
		Horizon:     r.ValidUntil.Sub(r.WindowEnd),
	}
}
