package domain

import "time"

// OpeningRange is the high/low span of one anchor window on one trading date.
// Corresponds to opening_ranges table.
type OpeningRange struct {
	RangeID     string    // deterministic hash
	Instrument  string    // instrument symbol
	Date        time.Time // trading date, midnight exchange time
	AnchorID    string    // anchor window identifier
	WindowStart time.Time // first instant inside the window
	WindowEnd   time.Time // window close (exclusive)
	ValidUntil  time.Time // breakout horizon end (exclusive)
	High        float64
	Low         float64
	Size        float64 // High - Low
	BarCount    int     // bars inside the window
}

// Midpoint returns the center of the range.
func (r OpeningRange) Midpoint() float64 {
	return (r.High + r.Low) / 2
}

// Direction is the breakout direction.
type Direction string

// Direction constants
const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// Sign returns +1 for long, -1 for short and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

// BreakoutSignal is the first close beyond an opening range.
type BreakoutSignal struct {
	Range     OpeningRange
	Direction Direction
	BarIndex  int       // index of the breakout bar in the scanned series, -1 for NONE
	BarTime   time.Time // breakout bar timestamp, zero for NONE
	Close     float64   // breakout bar close
}
