// Package metrics aggregates realized outcomes into risk-unit statistics.
package metrics

import (
	"math"
	"sort"

	"breakout-lab/internal/domain"
)

// Compute calculates statistics over viable realized outcomes.
// Unviable outcomes are counted but excluded from every figure.
// Outcomes are sorted by EntryTime ASC, TradeID ASC before computing
// order-dependent metrics (MaxDrawdownR, MaxConsecutiveLosses).
func Compute(outcomes []domain.RealizedOutcome) domain.OutcomeStats {
	var stats domain.OutcomeStats

	viable := make([]domain.RealizedOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Viable {
			stats.Unviable++
			continue
		}
		viable = append(viable, o)
	}

	n := len(viable)
	if n == 0 {
		return stats
	}

	// Sort deterministically by EntryTime ASC, TradeID ASC
	sort.Slice(viable, func(i, j int) bool {
		if !viable[i].EntryTime.Equal(viable[j].EntryTime) {
			return viable[i].EntryTime.Before(viable[j].EntryTime)
		}
		return viable[i].TradeID < viable[j].TradeID
	})

	r := make([]float64, n)
	for i, o := range viable {
		r[i] = o.RMultiple
		if o.Outcome == domain.StatusWin {
			stats.Wins++
		} else {
			stats.Losses++
		}
	}

	sorted := make([]float64, n)
	copy(sorted, r)
	sort.Float64s(sorted)

	mean := computeMean(r)

	stats.SampleSize = n
	stats.WinRate = computeWinRate(stats.Wins, n)
	stats.Expectancy = mean
	stats.MedianR = computePercentile(sorted, 0.50)
	stats.StddevR = computeStddev(r, mean)
	stats.P10R = computePercentile(sorted, 0.10)
	stats.P90R = computePercentile(sorted, 0.90)
	stats.TotalR = mean * float64(n)
	stats.MaxDrawdownR = computeMaxDrawdown(r)
	stats.MaxConsecutiveLosses = computeMaxConsecutiveLosses(r)

	return stats
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeMean calculates arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative R.
// Values must be in chronological order.
func computeMaxDrawdown(values []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, v := range values {
		cumulative += v
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of R <= 0.
// Values must be in chronological order.
func computeMaxConsecutiveLosses(values []float64) int {
	maxStreak := 0
	streak := 0

	for _, v := range values {
		if v <= 0 {
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 0
		}
	}
	return maxStreak
}
