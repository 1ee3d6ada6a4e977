package validation

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/simulation"
)

// expectancyEpsilon is the tolerance under which two expectancies tie.
const expectancyEpsilon = 1e-9

// gridEval is one evaluated combination.
type gridEval struct {
	params domain.TradeParams
	batch  *simulation.Batch
	stats  domain.OutcomeStats
}

// evaluateGrid simulates every combination over the same signals with at
// most workers goroutines. Results are indexed by grid position, so the
// merge is independent of completion order.
func evaluateGrid(ctx context.Context, sim *simulation.Simulator, signals []domain.BreakoutSignal, combos []domain.TradeParams, workers int) ([]gridEval, error) {
	results := make([]gridEval, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, params := range combos {
		g.Go(func() error {
			b, err := sim.SimulateAll(gctx, signals, params)
			if err != nil {
				return err
			}
			results[i] = gridEval{params: params, batch: b, stats: b.Stats()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// selectWinner returns the index of the combination with maximum
// expectancy among those with at least minSamples trades. Ties go to the
// larger sample, then to the smaller grid index. Returns -1 when no
// combination is eligible.
func selectWinner(results []gridEval, minSamples int) int {
	best := -1
	for i, r := range results {
		if !eligible(r.stats, minSamples) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := results[best].stats
		diff := r.stats.Expectancy - b.Expectancy
		switch {
		case diff > expectancyEpsilon:
			best = i
		case math.Abs(diff) <= expectancyEpsilon && r.stats.SampleSize > b.SampleSize:
			best = i
		}
	}
	return best
}

func eligible(stats domain.OutcomeStats, minSamples int) bool {
	return stats.SampleSize > 0 && stats.SampleSize >= minSamples
}

// gridRows converts evaluations into persisted grid results.
func gridRows(runID string, results []gridEval, winner, minSamples int) []domain.GridResult {
	rows := make([]domain.GridResult, len(results))
	for i, r := range results {
		rows[i] = domain.GridResult{
			RunID:      runID,
			GridIndex:  i,
			Params:     r.params,
			SampleSize: r.stats.SampleSize,
			Wins:       r.stats.Wins,
			Losses:     r.stats.Losses,
			WinRate:    r.stats.WinRate,
			Expectancy: r.stats.Expectancy,
			Unviable:   r.stats.Unviable,
			Eligible:   eligible(r.stats, minSamples),
			Selected:   i == winner,
		}
	}
	return rows
}
