package domain

import (
	"fmt"
	"time"
)

// EntryRule selects how a breakout is turned into a fill.
type EntryRule string

// Entry rule constants
const (
	EntryNextOpen      EntryRule = "NEXT_OPEN"      // open of the bar after the breakout bar
	EntryBreakoutClose EntryRule = "BREAKOUT_CLOSE" // close of the breakout bar
	EntryConfirmation  EntryRule = "CONFIRMATION"   // next bar must also close beyond the boundary
	EntryRetest        EntryRule = "RETEST"         // limit order at the broken boundary
)

// StopMode selects where the protective stop is placed.
type StopMode string

// Stop mode constants
const (
	StopFull StopMode = "FULL" // opposite range boundary
	StopHalf StopMode = "HALF" // range midpoint
)

// TradeStatus is the trade lifecycle state.
type TradeStatus string

// Trade status constants
const (
	StatusPendingEntry TradeStatus = "PENDING_ENTRY"
	StatusNoEntry      TradeStatus = "NO_ENTRY"
	StatusOpen         TradeStatus = "OPEN"
	StatusWin          TradeStatus = "WIN"
	StatusLoss         TradeStatus = "LOSS"
)

// Terminal reports whether no further transition is possible.
func (s TradeStatus) Terminal() bool {
	return s == StatusNoEntry || s == StatusWin || s == StatusLoss
}

// TradeParams is one parameter combination for simulating breakouts.
type TradeParams struct {
	EntryRule       EntryRule
	StopMode        StopMode
	TargetMultiple  float64 // target distance as a multiple of risk
	FilterThreshold float64 // minimum opening-range size in points, 0 disables
}

// Validate checks the parameter combination.
func (p TradeParams) Validate() error {
	switch p.EntryRule {
	case EntryNextOpen, EntryBreakoutClose, EntryConfirmation, EntryRetest:
	default:
		return fmt.Errorf("%w: unknown entry rule %q", ErrInvalidParams, p.EntryRule)
	}
	switch p.StopMode {
	case StopFull, StopHalf:
	default:
		return fmt.Errorf("%w: unknown stop mode %q", ErrInvalidParams, p.StopMode)
	}
	if p.TargetMultiple <= 0 {
		return fmt.Errorf("%w: target multiple must be positive, got %g", ErrInvalidParams, p.TargetMultiple)
	}
	if p.FilterThreshold < 0 {
		return fmt.Errorf("%w: filter threshold must be non-negative, got %g", ErrInvalidParams, p.FilterThreshold)
	}
	return nil
}

// Key returns a stable textual key for the combination.
func (p TradeParams) Key() string {
	return fmt.Sprintf("%s|%s|%g|%g", p.EntryRule, p.StopMode, p.TargetMultiple, p.FilterThreshold)
}

// TradeSimulation is the state of one simulated trade.
type TradeSimulation struct {
	TradeID    string // deterministic hash
	RangeID    string // source opening range
	Instrument string
	AnchorID   string
	Date       time.Time
	Direction  Direction
	Params     TradeParams
	Status     TradeStatus

	// Entry
	EntryIndex int       // fill bar index, -1 before fill
	EntryTime  time.Time // fill bar timestamp
	EntryPrice float64

	// Levels
	StopPrice   float64
	TargetPrice float64
	RiskPerUnit float64 // |entry - stop| in points

	// Exit
	ExitIndex int // terminal bar index, -1 while open
	ExitTime  time.Time
	ExitPrice float64

	// Excursions in risk units, non-negative
	MAE float64
	MFE float64
}
