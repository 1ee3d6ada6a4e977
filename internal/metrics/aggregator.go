package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// ErrNoTrades is returned when no outcomes are available for aggregation.
var ErrNoTrades = errors.New("no trades available for aggregation")

// Aggregator computes outcome statistics from stored realized outcomes.
type Aggregator struct {
	outcomeStore storage.TradeOutcomeStore
	rangeStore   storage.OpeningRangeStore // optional, enables orphan detection

	// MissingRanges tracks outcomes whose opening range is not stored
	// (for data quality reporting). Key: range_id, Value: count of outcomes.
	MissingRanges map[string]int
}

// NewAggregator creates a new metrics aggregator. rangeStore may be nil.
func NewAggregator(outcomeStore storage.TradeOutcomeStore, rangeStore storage.OpeningRangeStore) *Aggregator {
	return &Aggregator{
		outcomeStore:  outcomeStore,
		rangeStore:    rangeStore,
		MissingRanges: make(map[string]int),
	}
}

// ComputeStats aggregates outcomes for (instrument, params) whose trading
// date falls in dates. A zero dates value means all dates.
// Returns ErrNoTrades if nothing matches.
func (a *Aggregator) ComputeStats(ctx context.Context, instrument string, params domain.TradeParams, dates domain.DateRange) (*domain.OutcomeStats, error) {
	stored, err := a.outcomeStore.GetByParams(ctx, instrument, params)
	if err != nil {
		return nil, err
	}

	all := dates == (domain.DateRange{})
	var outcomes []domain.RealizedOutcome
	for _, o := range stored {
		if !all && !dates.Contains(o.Date) {
			continue
		}
		ok, err := a.rangeKnown(ctx, o.RangeID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		outcomes = append(outcomes, *o)
	}

	if len(outcomes) == 0 {
		return nil, ErrNoTrades
	}

	stats := Compute(outcomes)
	return &stats, nil
}

// rangeKnown records outcomes that reference a missing range instead of
// silently counting them.
func (a *Aggregator) rangeKnown(ctx context.Context, rangeID string) (bool, error) {
	if a.rangeStore == nil {
		return true, nil
	}
	if _, err := a.rangeStore.GetByID(ctx, rangeID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.MissingRanges[rangeID]++
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetMissingRangeErrors returns data quality errors for missing ranges,
// sorted by range_id for deterministic output.
func (a *Aggregator) GetMissingRangeErrors() []string {
	if len(a.MissingRanges) == 0 {
		return nil
	}

	keys := make([]string, 0, len(a.MissingRanges))
	for k := range a.MissingRanges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, len(keys))
	for i, rangeID := range keys {
		out[i] = fmt.Sprintf("missing range %s referenced by %d outcome(s)", rangeID, a.MissingRanges[rangeID])
	}
	return out
}
