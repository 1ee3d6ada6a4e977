// Package verification replays stored trade outcomes against a fresh
// simulation and reports every field that diverges.
package verification

import (
	"context"
	"math"
	"time"

	"breakout-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single trade.
type VerificationResult struct {
	TradeID     string            // verified trade ID
	Match       bool              // true if all fields match
	Divergences []FieldDivergence // list of divergent fields
	StoredR     float64           // R-multiple from stored outcome
	ReplayedR   float64           // R-multiple from replayed simulation
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalTrades     int                  // total trades verified
	MatchedTrades   int                  // trades that matched exactly
	DivergentTrades int                  // trades with divergences
	Results         []VerificationResult // individual results
}

// Verifier interface for trade replay verification.
type Verifier interface {
	// VerifyTrade loads the stored outcome, re-simulates its range with the
	// same parameters and compares all fields.
	VerifyTrade(ctx context.Context, tradeID string) (*VerificationResult, error)

	// VerifyAll verifies all stored outcomes.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

// divergences accumulates field mismatches.
type divergences []FieldDivergence

func (d *divergences) str(field, expected, actual string) {
	if expected != actual {
		*d = append(*d, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}
}

func (d *divergences) num(field string, expected, actual float64) {
	if !floatEquals(expected, actual) {
		*d = append(*d, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}
}

func (d *divergences) when(field string, expected, actual time.Time) {
	if !expected.Equal(actual) {
		*d = append(*d, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}
}

func (d *divergences) flag(field string, expected, actual bool) {
	if expected != actual {
		*d = append(*d, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}
}

// CompareOutcomes compares two realized outcomes and returns divergences.
// Uses FloatTolerance for float64 comparisons and instant equality for times.
func CompareOutcomes(stored, replayed *domain.RealizedOutcome) []FieldDivergence {
	var d divergences

	// Identity
	d.str("TradeID", stored.TradeID, replayed.TradeID)
	d.str("RangeID", stored.RangeID, replayed.RangeID)
	d.str("Instrument", stored.Instrument, replayed.Instrument)
	d.str("AnchorID", stored.AnchorID, replayed.AnchorID)
	d.when("Date", stored.Date, replayed.Date)
	d.str("Direction", string(stored.Direction), string(replayed.Direction))
	d.str("Params", stored.Params.Key(), replayed.Params.Key())

	// Trade path
	d.when("EntryTime", stored.EntryTime, replayed.EntryTime)
	d.num("EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	d.when("ExitTime", stored.ExitTime, replayed.ExitTime)
	d.num("ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	d.num("MAE", stored.MAE, replayed.MAE)
	d.num("MFE", stored.MFE, replayed.MFE)

	// Classification
	d.str("TheoreticalStatus", string(stored.TheoreticalStatus), string(replayed.TheoreticalStatus))
	d.str("Outcome", string(stored.Outcome), string(replayed.Outcome))
	d.flag("Viable", stored.Viable, replayed.Viable)
	d.str("ExclusionReason", stored.ExclusionReason, replayed.ExclusionReason)

	// Economics (critical for verification)
	d.num("StopPoints", stored.StopPoints, replayed.StopPoints)
	d.num("TargetPoints", stored.TargetPoints, replayed.TargetPoints)
	d.num("FrictionDollars", stored.FrictionDollars, replayed.FrictionDollars)
	d.num("RiskDollars", stored.RiskDollars, replayed.RiskDollars)
	d.num("RewardDollars", stored.RewardDollars, replayed.RewardDollars)
	d.num("RealizedRR", stored.RealizedRR, replayed.RealizedRR)
	d.num("CostRatio", stored.CostRatio, replayed.CostRatio)
	d.num("RMultiple", stored.RMultiple, replayed.RMultiple)

	return d
}

// CompareRanges compares a stored opening range with its rebuilt twin.
func CompareRanges(stored, rebuilt *domain.OpeningRange) []FieldDivergence {
	var d divergences
	d.str("Range.RangeID", stored.RangeID, rebuilt.RangeID)
	d.when("Range.WindowStart", stored.WindowStart, rebuilt.WindowStart)
	d.when("Range.WindowEnd", stored.WindowEnd, rebuilt.WindowEnd)
	d.when("Range.ValidUntil", stored.ValidUntil, rebuilt.ValidUntil)
	d.num("Range.High", stored.High, rebuilt.High)
	d.num("Range.Low", stored.Low, rebuilt.Low)
	if stored.BarCount != rebuilt.BarCount {
		d = append(d, FieldDivergence{Field: "Range.BarCount", Expected: stored.BarCount, Actual: rebuilt.BarCount})
	}
	return d
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
