// Package simulation resolves breakout signals into trades: entry fill,
// stop/target crossing, excursions, and cost reconciliation.
package simulation

import (
	"fmt"
	"math"
	"time"

	"breakout-lab/internal/cost"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/idhash"
)

// Options bound the trade lifecycle.
type Options struct {
	EntryHorizon time.Duration // max wait after the breakout bar for a fill, 0 = the range validity horizon
	TradeHorizon time.Duration // max time a trade stays open, 0 = until bars run out
}

// Simulator walks trades over one instrument's read-only bar series.
// It holds no mutable state and is safe for concurrent use.
type Simulator struct {
	cost   *cost.Model
	series *domain.BarSeries
	opts   Options
}

// New creates a Simulator.
func New(model *cost.Model, series *domain.BarSeries, opts Options) *Simulator {
	return &Simulator{cost: model, series: series, opts: opts}
}

// fill describes how PENDING_ENTRY resolved.
type fill struct {
	ok        bool
	reason    string // NO_ENTRY reason
	index     int    // fill bar
	price     float64
	evalFrom  int  // first bar evaluated in full for stop/target
	stopOnBar bool // fill bar is checked for the stop only
}

// Simulate resolves one breakout under one parameter combination.
// Returns ErrUnknownInstrument for instruments off the allowlist and
// ErrInvalidParams for malformed parameters. Every other condition is
// reported through the Result variant.
func (s *Simulator) Simulate(sig domain.BreakoutSignal, p domain.TradeParams) (Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	r := sig.Range
	spec, err := s.cost.Spec(r.Instrument)
	if err != nil {
		return nil, err
	}
	if r.Instrument != s.series.Instrument() {
		return nil, fmt.Errorf("%w: signal for %q on %q series",
			domain.ErrUnknownInstrument, r.Instrument, s.series.Instrument())
	}

	trade := domain.TradeSimulation{
		TradeID:    idhash.ComputeTradeID(r.RangeID, string(p.EntryRule), string(p.StopMode), p.TargetMultiple, p.FilterThreshold),
		RangeID:    r.RangeID,
		Instrument: r.Instrument,
		AnchorID:   r.AnchorID,
		Date:       r.Date,
		Direction:  sig.Direction,
		Params:     p,
		Status:     domain.StatusPendingEntry,
		EntryIndex: -1,
		ExitIndex:  -1,
	}

	if sig.Direction == domain.DirectionNone {
		trade.Status = domain.StatusNoEntry
		return NoEntry{Sim: trade, Reason: "no breakout"}, nil
	}

	bars := s.series.View()
	if sig.BarIndex < 0 || sig.BarIndex >= len(bars) || !bars[sig.BarIndex].Timestamp.Equal(sig.BarTime) {
		return nil, fmt.Errorf("%w: breakout bar %d at %s not in series",
			domain.ErrInsufficientData, sig.BarIndex, sig.BarTime.Format(time.RFC3339))
	}

	stop := stopPrice(r, sig.Direction, p.StopMode, spec.TickSize)
	f := s.fill(sig, p.EntryRule)
	if !f.ok {
		trade.Status = domain.StatusNoEntry
		return NoEntry{Sim: trade, Reason: f.reason}, nil
	}

	sign := sig.Direction.Sign()
	risk := sign * (f.price - stop)
	if risk <= 0 {
		trade.Status = domain.StatusNoEntry
		return NoEntry{Sim: trade, Reason: fmt.Sprintf("fill %.4f not beyond stop %.4f", f.price, stop)}, nil
	}

	trade.Status = domain.StatusOpen
	trade.EntryIndex = f.index
	trade.EntryTime = bars[f.index].Timestamp
	trade.EntryPrice = f.price
	trade.StopPrice = stop
	trade.RiskPerUnit = risk
	trade.TargetPrice = f.price + sign*p.TargetMultiple*risk

	s.walk(&trade, f)

	if trade.Status == domain.StatusOpen {
		return Unresolved{Sim: trade}, nil
	}

	econ, err := s.cost.RealizedRR(risk, p.TargetMultiple*risk, r.Instrument)
	if err != nil {
		return nil, err
	}

	outcome := realize(trade, econ)
	if !outcome.Viable {
		return Unviable{Sim: trade, Outcome: outcome, Err: econ.GateError()}, nil
	}
	return Realized{
		Sim:        trade,
		Outcome:    outcome,
		Downgraded: trade.Status == domain.StatusWin && outcome.Outcome == domain.StatusLoss,
	}, nil
}

// stopPrice places the protective stop.
// FULL uses the opposite boundary. HALF uses the midpoint rounded away from
// entry to the tick grid and clamped inside the range.
func stopPrice(r domain.OpeningRange, dir domain.Direction, mode domain.StopMode, tick float64) float64 {
	if mode == domain.StopFull {
		if dir == domain.DirectionLong {
			return r.Low
		}
		return r.High
	}

	mid := r.Midpoint()
	if tick > 0 {
		if dir == domain.DirectionLong {
			mid = math.Floor(mid/tick+1e-9) * tick
		} else {
			mid = math.Ceil(mid/tick-1e-9) * tick
		}
	}
	return math.Min(math.Max(mid, r.Low), r.High)
}

// fill applies the entry rule to the bars after the breakout.
func (s *Simulator) fill(sig domain.BreakoutSignal, rule domain.EntryRule) fill {
	bars := s.series.View()
	r := sig.Range
	long := sig.Direction == domain.DirectionLong

	deadline := r.ValidUntil
	if s.opts.EntryHorizon > 0 {
		deadline = sig.BarTime.Add(s.opts.EntryHorizon)
	}
	inHorizon := func(i int) bool {
		return i < len(bars) && bars[i].Timestamp.Before(deadline)
	}

	next := sig.BarIndex + 1

	switch rule {
	case domain.EntryBreakoutClose:
		return fill{ok: true, index: sig.BarIndex, price: bars[sig.BarIndex].Close, evalFrom: sig.BarIndex + 1}

	case domain.EntryNextOpen:
		if !inHorizon(next) {
			return fill{reason: "no bar after breakout within entry horizon"}
		}
		return fill{ok: true, index: next, price: bars[next].Open, evalFrom: next}

	case domain.EntryConfirmation:
		if !inHorizon(next) {
			return fill{reason: "no confirmation bar within entry horizon"}
		}
		c := bars[next].Close
		if (long && c <= r.High) || (!long && c >= r.Low) {
			return fill{reason: "confirmation bar closed inside range"}
		}
		return fill{ok: true, index: next, price: c, evalFrom: next + 1}

	case domain.EntryRetest:
		level := r.Low
		if long {
			level = r.High
		}
		for i := next; inHorizon(i); i++ {
			b := bars[i]
			if long && b.Low <= level {
				return fill{ok: true, index: i, price: math.Min(b.Open, level), evalFrom: i + 1, stopOnBar: true}
			}
			if !long && b.High >= level {
				return fill{ok: true, index: i, price: math.Max(b.Open, level), evalFrom: i + 1, stopOnBar: true}
			}
		}
		return fill{reason: "boundary not retested within entry horizon"}
	}

	return fill{reason: fmt.Sprintf("unsupported entry rule %s", rule)}
}

// walk advances an OPEN trade bar by bar until stop, target or horizon.
// Touches are inclusive. A bar crossing both stop and target is a LOSS.
func (s *Simulator) walk(t *domain.TradeSimulation, f fill) {
	bars := s.series.View()
	long := t.Direction == domain.DirectionLong

	var limit time.Time
	if s.opts.TradeHorizon > 0 {
		limit = t.EntryTime.Add(s.opts.TradeHorizon)
	}

	if f.stopOnBar {
		b := bars[f.index]
		s.excursions(t, b, false)
		if stopHit(long, b, t.StopPrice) {
			s.close(t, f.index, domain.StatusLoss, t.StopPrice)
			return
		}
	}

	for i := f.evalFrom; i < len(bars); i++ {
		b := bars[i]
		if !limit.IsZero() && b.Timestamp.After(limit) {
			return
		}

		s.excursions(t, b, true)

		hitStop := stopHit(long, b, t.StopPrice)
		hitTarget := targetHit(long, b, t.TargetPrice)
		switch {
		case hitStop:
			s.close(t, i, domain.StatusLoss, t.StopPrice)
			return
		case hitTarget:
			s.close(t, i, domain.StatusWin, t.TargetPrice)
			return
		}
	}
}

func stopHit(long bool, b domain.PriceBar, stop float64) bool {
	if long {
		return b.Low <= stop
	}
	return b.High >= stop
}

func targetHit(long bool, b domain.PriceBar, target float64) bool {
	if long {
		return b.High >= target
	}
	return b.Low <= target
}

// excursions updates MAE/MFE in risk units, bounded by the stop and target.
func (s *Simulator) excursions(t *domain.TradeSimulation, b domain.PriceBar, favorable bool) {
	var adverse, fav float64
	if t.Direction == domain.DirectionLong {
		adverse = (t.EntryPrice - b.Low) / t.RiskPerUnit
		fav = (b.High - t.EntryPrice) / t.RiskPerUnit
	} else {
		adverse = (b.High - t.EntryPrice) / t.RiskPerUnit
		fav = (t.EntryPrice - b.Low) / t.RiskPerUnit
	}

	adverse = math.Min(adverse, 1)
	fav = math.Min(fav, t.Params.TargetMultiple)

	if adverse > t.MAE {
		t.MAE = adverse
	}
	if favorable && fav > t.MFE {
		t.MFE = fav
	}
}

func (s *Simulator) close(t *domain.TradeSimulation, i int, status domain.TradeStatus, price float64) {
	t.Status = status
	t.ExitIndex = i
	t.ExitTime = s.series.At(i).Timestamp
	t.ExitPrice = price
}

// realize reconciles a terminal trade with its cost economics.
func realize(t domain.TradeSimulation, econ cost.Economics) domain.RealizedOutcome {
	o := domain.RealizedOutcome{
		TradeID:           t.TradeID,
		RangeID:           t.RangeID,
		Instrument:        t.Instrument,
		AnchorID:          t.AnchorID,
		Date:              t.Date,
		Direction:         t.Direction,
		Params:            t.Params,
		EntryTime:         t.EntryTime,
		EntryPrice:        t.EntryPrice,
		ExitTime:          t.ExitTime,
		ExitPrice:         t.ExitPrice,
		MAE:               t.MAE,
		MFE:               t.MFE,
		TheoreticalStatus: t.Status,
		Outcome:           t.Status,
		StopPoints:        t.RiskPerUnit,
		TargetPoints:      t.Params.TargetMultiple * t.RiskPerUnit,
		FrictionDollars:   econ.FrictionDollars,
		RiskDollars:       econ.RiskDollars,
		RewardDollars:     econ.RewardDollars,
		RealizedRR:        econ.RR,
		CostRatio:         econ.CostRatio,
	}

	if !econ.GatePassed {
		o.Viable = false
		o.ExclusionReason = econ.GateReason
		return o
	}

	o.Viable = true
	if o.Outcome == domain.StatusWin && econ.RR <= 0 {
		o.Outcome = domain.StatusLoss
	}
	if o.Outcome == domain.StatusWin {
		o.RMultiple = econ.RR
	} else {
		o.RMultiple = -1
	}
	return o
}
