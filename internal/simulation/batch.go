package simulation

import (
	"context"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/metrics"
)

// Batch is the result of simulating one parameter combination over a
// signal set.
type Batch struct {
	Params   domain.TradeParams
	Outcomes []domain.RealizedOutcome // viable and unviable, in signal order

	Signals    int // signals considered
	NoSignal   int // ranges without a breakout
	Filtered   int // ranges below the filter threshold
	NoEntry    int
	Unresolved int
	Downgraded int
}

// Stats aggregates the batch outcomes.
func (b *Batch) Stats() domain.OutcomeStats {
	stats := metrics.Compute(b.Outcomes)
	stats.NoEntry = b.NoEntry
	stats.Unresolved = b.Unresolved
	stats.Filtered = b.Filtered
	return stats
}

// SimulateAll resolves every signal under p, in order.
// Ranges smaller than p.FilterThreshold are counted as filtered and skipped.
// Returns ctx.Err() if the context is cancelled mid-batch.
func (s *Simulator) SimulateAll(ctx context.Context, signals []domain.BreakoutSignal, p domain.TradeParams) (*Batch, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	b := &Batch{Params: p, Signals: len(signals)}
	for _, sig := range signals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if sig.Direction == domain.DirectionNone {
			b.NoSignal++
			continue
		}
		if sig.Range.Size < p.FilterThreshold {
			b.Filtered++
			continue
		}

		res, err := s.Simulate(sig, p)
		if err != nil {
			return nil, err
		}

		switch r := res.(type) {
		case Realized:
			if r.Downgraded {
				b.Downgraded++
			}
			b.Outcomes = append(b.Outcomes, r.Outcome)
		case Unviable:
			b.Outcomes = append(b.Outcomes, r.Outcome)
		case NoEntry:
			b.NoEntry++
		case Unresolved:
			b.Unresolved++
		}
	}

	return b, nil
}
