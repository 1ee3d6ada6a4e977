package domain

import (
	"fmt"
	"time"
)

// PriceBar represents one OHLCV bar for an instrument.
// Corresponds to price_bars table.
type PriceBar struct {
	Instrument string    // instrument symbol
	Timestamp  time.Time // bar open time, exchange timezone
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// BarSeries is an immutable, timestamp-ordered bar sequence for one instrument.
// Gaps (weekends, holidays) are represented by absence.
type BarSeries struct {
	instrument string
	bars       []PriceBar
}

// NewBarSeries validates bars and wraps them in a read-only series.
// Bars must belong to instrument, be strictly increasing by timestamp
// and have High >= Low.
func NewBarSeries(instrument string, bars []PriceBar) (*BarSeries, error) {
	if instrument == "" {
		return nil, fmt.Errorf("%w: empty instrument", ErrInvalidBars)
	}

	owned := make([]PriceBar, len(bars))
	copy(owned, bars)

	for i, b := range owned {
		if b.Instrument != instrument {
			return nil, fmt.Errorf("%w: bar %d belongs to %q, series is %q", ErrInvalidBars, i, b.Instrument, instrument)
		}
		if b.High < b.Low {
			return nil, fmt.Errorf("%w: bar %d high %.4f below low %.4f", ErrInvalidBars, i, b.High, b.Low)
		}
		if i == 0 {
			continue
		}
		prev := owned[i-1].Timestamp
		if b.Timestamp.Equal(prev) {
			return nil, fmt.Errorf("%w: duplicate timestamp %s", ErrInvalidBars, b.Timestamp.Format(time.RFC3339))
		}
		if b.Timestamp.Before(prev) {
			return nil, fmt.Errorf("%w: bar %d at %s precedes %s", ErrInvalidBars, i,
				b.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}

	return &BarSeries{instrument: instrument, bars: owned}, nil
}

// Instrument returns the series instrument.
func (s *BarSeries) Instrument() string { return s.instrument }

// Len returns the number of bars.
func (s *BarSeries) Len() int { return len(s.bars) }

// At returns the bar at index i.
func (s *BarSeries) At(i int) PriceBar { return s.bars[i] }

// Bars returns a copy of the underlying bars.
func (s *BarSeries) Bars() []PriceBar {
	out := make([]PriceBar, len(s.bars))
	copy(out, s.bars)
	return out
}

// View returns the read-only backing slice. Callers must not modify it.
func (s *BarSeries) View() []PriceBar { return s.bars }

// Sub returns the series restricted to bars [lo, hi).
// The result shares storage with s.
func (s *BarSeries) Sub(lo, hi int) *BarSeries {
	if lo < 0 {
		lo = 0
	}
	if hi > len(s.bars) {
		hi = len(s.bars)
	}
	if lo > hi {
		lo = hi
	}
	return &BarSeries{instrument: s.instrument, bars: s.bars[lo:hi:hi]}
}

// First returns the timestamp of the first bar, zero if empty.
func (s *BarSeries) First() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[0].Timestamp
}

// Last returns the timestamp of the last bar, zero if empty.
func (s *BarSeries) Last() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[len(s.bars)-1].Timestamp
}
