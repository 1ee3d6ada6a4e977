// Package ranges builds opening ranges per anchor window and detects
// the first breakout close beyond them.
package ranges

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/idhash"
	"breakout-lab/internal/lookup"
)

// Builder computes opening ranges over a read-only bar series.
type Builder struct {
	series *domain.BarSeries
	loc    *time.Location // exchange timezone
}

// NewBuilder creates a Builder for one instrument's bars in loc.
func NewBuilder(series *domain.BarSeries, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{series: series, loc: loc}
}

// Location returns the exchange timezone.
func (b *Builder) Location() *time.Location { return b.loc }

// Series returns the underlying bar series.
func (b *Builder) Series() *domain.BarSeries { return b.series }

// Build returns a lazy, finite sequence of opening ranges for every date in
// dates and every anchor, in (date, anchor order) order. Dates whose window
// holds no bars are skipped. Ranging the sequence twice yields identical
// ranges, and a sequence started at any date reproduces the same ranges
// for that date onward.
func (b *Builder) Build(instrument string, dates domain.DateRange, anchors []domain.AnchorWindow) (iter.Seq[domain.OpeningRange], error) {
	if instrument != b.series.Instrument() {
		return nil, fmt.Errorf("%w: builder holds %q, requested %q",
			domain.ErrUnknownInstrument, b.series.Instrument(), instrument)
	}
	for _, a := range anchors {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	anchors = slices.Clone(anchors)

	seq := func(yield func(domain.OpeningRange) bool) {
		if dates.Empty() {
			return
		}
		bars := b.series.View()
		days := dates.In(b.loc)
		for day := days.Start; day.Before(days.End); day = day.AddDate(0, 0, 1) {
			for _, a := range anchors {
				r, ok := b.rangeFor(bars, instrument, day, a)
				if !ok {
					continue
				}
				if !yield(r) {
					return
				}
			}
		}
	}

	return seq, nil
}

// rangeFor computes one window. Returns false when the window has no bars.
func (b *Builder) rangeFor(bars []domain.PriceBar, instrument string, day time.Time, a domain.AnchorWindow) (domain.OpeningRange, bool) {
	start, end, validUntil := a.Bounds(day, b.loc)
	lo, hi := lookup.Window(bars, start, end)
	if lo == hi {
		return domain.OpeningRange{}, false
	}

	high := bars[lo].High
	low := bars[lo].Low
	for _, bar := range bars[lo+1 : hi] {
		if bar.High > high {
			high = bar.High
		}
		if bar.Low < low {
			low = bar.Low
		}
	}

	return domain.OpeningRange{
		RangeID:     idhash.ComputeRangeID(instrument, day, a.ID),
		Instrument:  instrument,
		Date:        day,
		AnchorID:    a.ID,
		WindowStart: start,
		WindowEnd:   end,
		ValidUntil:  validUntil,
		High:        high,
		Low:         low,
		Size:        high - low,
		BarCount:    hi - lo,
	}, true
}

// Collect materializes a range sequence.
func Collect(seq iter.Seq[domain.OpeningRange]) []domain.OpeningRange {
	return slices.Collect(seq)
}

// Detect scans bars strictly after the window close, up to the range's
// validity horizon, for the first close beyond a boundary. Intrabar
// touches do not qualify. A zero-size range never breaks out.
func (b *Builder) Detect(r domain.OpeningRange) domain.BreakoutSignal {
	return Detect(b.series, r)
}

// Detect is Builder.Detect over an explicit series.
func Detect(series *domain.BarSeries, r domain.OpeningRange) domain.BreakoutSignal {
	none := domain.BreakoutSignal{Range: r, Direction: domain.DirectionNone, BarIndex: -1}
	if r.Size <= 0 {
		return none
	}

	bars := series.View()
	lo, hi := lookup.Window(bars, r.WindowEnd, r.ValidUntil)
	for i := lo; i < hi; i++ {
		bar := bars[i]
		var dir domain.Direction
		switch {
		case bar.Close > r.High:
			dir = domain.DirectionLong
		case bar.Close < r.Low:
			dir = domain.DirectionShort
		default:
			continue
		}
		return domain.BreakoutSignal{
			Range:     r,
			Direction: dir,
			BarIndex:  i,
			BarTime:   bar.Timestamp,
			Close:     bar.Close,
		}
	}

	return none
}

// Signals pairs each range with its breakout signal, preserving order.
func (b *Builder) Signals(seq iter.Seq[domain.OpeningRange]) iter.Seq[domain.BreakoutSignal] {
	return func(yield func(domain.BreakoutSignal) bool) {
		for r := range seq {
			if !yield(b.Detect(r)) {
				return
			}
		}
	}
}
