package domain

import (
	"fmt"
	"time"
)

// InstrumentSpec is the static per-instrument cost and contract profile.
type InstrumentSpec struct {
	Symbol     string  // instrument symbol, e.g. "ES"
	PointValue float64 // dollars per full point per contract
	TickSize   float64 // minimum price increment in points
	Commission float64 // round-trip commission in dollars
	Spread     float64 // spread cost in dollars
	Slippage   float64 // slippage allowance in dollars
	Timezone   string  // IANA exchange timezone
	Allowed    bool    // allowlist membership
}

// Location loads the exchange timezone. Empty timezone means UTC.
func (s InstrumentSpec) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q for %s: %w", s.Timezone, s.Symbol, err)
	}
	return loc, nil
}
