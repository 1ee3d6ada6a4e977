package simulation

import "breakout-lab/internal/domain"

// Result is the closed set of simulation outcomes:
// Realized, Unviable, NoEntry and Unresolved.
type Result interface {
	// Trade returns the final trade state.
	Trade() domain.TradeSimulation
	isResult()
}

// Realized is a terminal, cost-reconciled, viable trade.
type Realized struct {
	Sim        domain.TradeSimulation
	Outcome    domain.RealizedOutcome
	Downgraded bool // theoretical WIN rewritten to LOSS because realized RR <= 0
}

// Unviable is a terminal trade excluded by the integrity gate.
type Unviable struct {
	Sim     domain.TradeSimulation
	Outcome domain.RealizedOutcome // Viable=false
	Err     error                  // wraps domain.ErrIntegrityGateFailed
}

// NoEntry is a breakout that never produced a valid fill.
type NoEntry struct {
	Sim    domain.TradeSimulation
	Reason string
}

// Unresolved is a filled trade that hit neither stop nor target before
// bars or the trade horizon ran out.
type Unresolved struct {
	Sim domain.TradeSimulation
}

func (r Realized) Trade() domain.TradeSimulation   { return r.Sim }
func (r Unviable) Trade() domain.TradeSimulation   { return r.Sim }
func (r NoEntry) Trade() domain.TradeSimulation    { return r.Sim }
func (r Unresolved) Trade() domain.TradeSimulation { return r.Sim }

func (Realized) isResult()   {}
func (Unviable) isResult()   {}
func (NoEntry) isResult()    {}
func (Unresolved) isResult() {}
