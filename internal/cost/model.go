// Package cost converts stop/target distances into friction-adjusted dollar
// economics and enforces the instrument allowlist and the integrity gate.
package cost

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"breakout-lab/internal/domain"
)

// DefaultMaxCostRatio is the integrity gate limit: a trade fails when
// friction is at least this share of its raw stop risk.
const DefaultMaxCostRatio = 0.30

// ErrInvalidSpec is returned by NewModel for a malformed instrument table.
var ErrInvalidSpec = errors.New("invalid instrument spec")

// Economics is the realized reward-to-risk profile of one trade.
type Economics struct {
	FrictionDollars float64
	RiskDollars     float64 // stop * point_value + friction
	RewardDollars   float64 // target * point_value - friction
	RR              float64 // reward / risk, 0 when reward <= 0
	CostRatio       float64 // friction / (stop * point_value)
	GatePassed      bool
	GateReason      string // empty when the gate passed
}

// Model is a pure cost model over a static instrument table.
type Model struct {
	specs        map[string]domain.InstrumentSpec // allowlisted instruments only
	maxCostRatio decimal.Decimal
}

// Option configures a Model.
type Option func(*Model)

// WithMaxCostRatio overrides the integrity gate limit.
func WithMaxCostRatio(ratio float64) Option {
	return func(m *Model) {
		m.maxCostRatio = decimal.NewFromFloat(ratio)
	}
}

// NewModel validates the instrument table and builds the allowlist.
// Instruments with Allowed=false are rejected by every operation.
func NewModel(specs []domain.InstrumentSpec, opts ...Option) (*Model, error) {
	m := &Model{
		specs:        make(map[string]domain.InstrumentSpec, len(specs)),
		maxCostRatio: decimal.NewFromFloat(DefaultMaxCostRatio),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.maxCostRatio.IsPositive() {
		return nil, fmt.Errorf("%w: max cost ratio must be positive", ErrInvalidSpec)
	}

	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if err := validateSpec(s); err != nil {
			return nil, err
		}
		if _, dup := seen[s.Symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate instrument %s", ErrInvalidSpec, s.Symbol)
		}
		seen[s.Symbol] = struct{}{}

		if s.Allowed {
			m.specs[s.Symbol] = s
		}
	}

	return m, nil
}

func validateSpec(s domain.InstrumentSpec) error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidSpec)
	}
	if s.PointValue <= 0 {
		return fmt.Errorf("%w: %s point value must be positive", ErrInvalidSpec, s.Symbol)
	}
	if s.TickSize <= 0 {
		return fmt.Errorf("%w: %s tick size must be positive", ErrInvalidSpec, s.Symbol)
	}
	if s.Commission < 0 || s.Spread < 0 || s.Slippage < 0 {
		return fmt.Errorf("%w: %s friction components must be non-negative", ErrInvalidSpec, s.Symbol)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return nil
}

// Spec returns the allowlisted spec for an instrument.
func (m *Model) Spec(instrument string) (domain.InstrumentSpec, error) {
	s, ok := m.specs[instrument]
	if !ok {
		return domain.InstrumentSpec{}, fmt.Errorf("%w: %q", domain.ErrUnknownInstrument, instrument)
	}
	return s, nil
}

// Instruments returns the allowlisted symbols in sorted order.
func (m *Model) Instruments() []string {
	out := make([]string, 0, len(m.specs))
	for sym := range m.specs {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Friction returns commission + spread + slippage in dollars.
func (m *Model) Friction(instrument string) (float64, error) {
	s, err := m.Spec(instrument)
	if err != nil {
		return 0, err
	}
	f, _ := friction(s).Float64()
	return f, nil
}

func friction(s domain.InstrumentSpec) decimal.Decimal {
	return decimal.NewFromFloat(s.Commission).
		Add(decimal.NewFromFloat(s.Spread)).
		Add(decimal.NewFromFloat(s.Slippage))
}

// RealizedRR converts stop and target distances (points) into dollar
// risk/reward after friction and applies the integrity gate.
// The gate fails closed when the stop distance is not positive or when
// friction / (stop * point_value) >= the max cost ratio.
func (m *Model) RealizedRR(stopPoints, targetPoints float64, instrument string) (Economics, error) {
	s, err := m.Spec(instrument)
	if err != nil {
		return Economics{}, err
	}

	pv := decimal.NewFromFloat(s.PointValue)
	fr := friction(s)
	rawRisk := decimal.NewFromFloat(stopPoints).Mul(pv)
	risk := rawRisk.Add(fr)
	reward := decimal.NewFromFloat(targetPoints).Mul(pv).Sub(fr)

	rr := decimal.Zero
	if reward.IsPositive() && risk.IsPositive() {
		rr = reward.Div(risk)
	}

	econ := Economics{
		FrictionDollars: toFloat(fr),
		RiskDollars:     toFloat(risk),
		RewardDollars:   toFloat(reward),
		RR:              toFloat(rr),
		GatePassed:      true,
	}

	if !rawRisk.IsPositive() {
		econ.GatePassed = false
		econ.GateReason = fmt.Sprintf("stop distance %g points is not positive", stopPoints)
		return econ, nil
	}

	ratio := fr.Div(rawRisk)
	econ.CostRatio = toFloat(ratio)
	if ratio.GreaterThanOrEqual(m.maxCostRatio) {
		econ.GatePassed = false
		econ.GateReason = fmt.Sprintf("friction $%s is %s%% of risk, limit %s%%",
			fr.StringFixed(2),
			ratio.Mul(decimal.NewFromInt(100)).StringFixed(1),
			m.maxCostRatio.Mul(decimal.NewFromInt(100)).StringFixed(1),
		)
	}

	return econ, nil
}

// GateError wraps an economics gate failure as ErrIntegrityGateFailed.
// Returns nil when the gate passed.
func (e Economics) GateError() error {
	if e.GatePassed {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrIntegrityGateFailed, e.GateReason)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
