package domain

import "time"

// RealizedOutcome is a terminal trade reconciled against the cost model.
// Corresponds to trade_outcomes table. Statistics consume this record,
// never the theoretical TradeSimulation status.
type RealizedOutcome struct {
	TradeID    string // deterministic hash
	RangeID    string
	Instrument string
	AnchorID   string
	Date       time.Time
	Direction  Direction
	Params     TradeParams

	// Trade path
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	MAE        float64 // risk units
	MFE        float64 // risk units

	// Classification
	TheoreticalStatus TradeStatus // WIN | LOSS before cost reconciliation
	Outcome           TradeStatus // WIN | LOSS after cost reconciliation
	Viable            bool        // false when the integrity gate failed
	ExclusionReason   string      // gate reason for unviable trades

	// Economics
	StopPoints      float64
	TargetPoints    float64
	FrictionDollars float64
	RiskDollars     float64
	RewardDollars   float64
	RealizedRR      float64 // reward / risk, 0 when reward <= 0
	CostRatio       float64 // friction / raw stop risk
	RMultiple       float64 // +RealizedRR for WIN, -1 for LOSS, 0 when unviable
}

// OutcomeStats aggregates viable realized outcomes in risk units.
type OutcomeStats struct {
	SampleSize int // viable WIN + LOSS outcomes
	Wins       int
	Losses     int
	WinRate    float64
	Expectancy float64 // mean R-multiple

	MedianR float64
	StddevR float64
	P10R    float64
	P90R    float64
	TotalR  float64

	MaxDrawdownR         float64 // worst peak-to-trough of cumulative R
	MaxConsecutiveLosses int

	// Reported, excluded from the figures above
	Unviable   int
	NoEntry    int
	Unresolved int
	Filtered   int
}
