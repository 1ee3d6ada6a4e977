package lookup

import (
	"sort"
	"time"

	"breakout-lab/internal/domain"
)

// IndexAtOrAfter returns the index of the first bar with timestamp >= target,
// or len(bars) if none. Bars must be sorted by timestamp.
func IndexAtOrAfter(bars []domain.PriceBar, target time.Time) int {
	return sort.Search(len(bars), func(i int) bool {
		return !bars[i].Timestamp.Before(target)
	})
}

// Window returns [lo, hi) bar indexes with timestamps in [from, to).
func Window(bars []domain.PriceBar, from, to time.Time) (int, int) {
	lo := IndexAtOrAfter(bars, from)
	hi := IndexAtOrAfter(bars, to)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Slice restricts a series to timestamps in [from, to).
func Slice(series *domain.BarSeries, from, to time.Time) *domain.BarSeries {
	lo, hi := Window(series.View(), from, to)
	return series.Sub(lo, hi)
}
