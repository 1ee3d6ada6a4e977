package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// TradeOutcomeStore implements storage.TradeOutcomeStore using PostgreSQL.
type TradeOutcomeStore struct {
	pool *Pool
}

// NewTradeOutcomeStore creates a new TradeOutcomeStore.
func NewTradeOutcomeStore(pool *Pool) *TradeOutcomeStore {
	return &TradeOutcomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeOutcomeStore = (*TradeOutcomeStore)(nil)

const tradeOutcomeColumns = `
	trade_id, range_id, instrument, anchor_id, trade_date, direction,
	entry_rule, stop_mode, target_multiple, filter_threshold,
	entry_time, entry_price, exit_time, exit_price, mae, mfe,
	theoretical_status, outcome, viable, exclusion_reason,
	stop_points, target_points, friction_dollars, risk_dollars, reward_dollars,
	realized_rr, cost_ratio, r_multiple
`

// Insert adds a new outcome. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeOutcomeStore) Insert(ctx context.Context, o *domain.RealizedOutcome) error {
	query := `
		INSERT INTO trade_outcomes (` + tradeOutcomeColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23, $24, $25,
			$26, $27, $28
		)
	`

	_, err := s.pool.Exec(ctx, query,
		o.TradeID, o.RangeID, o.Instrument, o.AnchorID, o.Date, string(o.Direction),
		string(o.Params.EntryRule), string(o.Params.StopMode), o.Params.TargetMultiple, o.Params.FilterThreshold,
		o.EntryTime, o.EntryPrice, o.ExitTime, o.ExitPrice, o.MAE, o.MFE,
		string(o.TheoreticalStatus), string(o.Outcome), o.Viable, o.ExclusionReason,
		o.StopPoints, o.TargetPoints, o.FrictionDollars, o.RiskDollars, o.RewardDollars,
		o.RealizedRR, o.CostRatio, o.RMultiple,
	)
	return mapError(err, "insert", storage.KindOutcome, o.TradeID)
}

// GetByID retrieves an outcome by trade ID. Returns ErrNotFound if not exists.
func (s *TradeOutcomeStore) GetByID(ctx context.Context, tradeID string) (*domain.RealizedOutcome, error) {
	query := `SELECT ` + tradeOutcomeColumns + ` FROM trade_outcomes WHERE trade_id = $1`

	o, err := scanTradeOutcome(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		return nil, mapError(err, "get", storage.KindOutcome, tradeID)
	}
	return o, nil
}

// GetByParams retrieves outcomes for an instrument and parameter combination.
func (s *TradeOutcomeStore) GetByParams(ctx context.Context, instrument string, p domain.TradeParams) ([]*domain.RealizedOutcome, error) {
	query := `
		SELECT ` + tradeOutcomeColumns + `
		FROM trade_outcomes
		WHERE instrument = $1 AND entry_rule = $2 AND stop_mode = $3
		  AND target_multiple = $4 AND filter_threshold = $5
		ORDER BY entry_time ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query,
		instrument, string(p.EntryRule), string(p.StopMode), p.TargetMultiple, p.FilterThreshold)
	if err != nil {
		return nil, fmt.Errorf("get trade outcomes by params: %w", err)
	}
	defer rows.Close()

	return scanTradeOutcomes(rows)
}

// GetAll retrieves all outcomes.
func (s *TradeOutcomeStore) GetAll(ctx context.Context) ([]*domain.RealizedOutcome, error) {
	query := `SELECT ` + tradeOutcomeColumns + ` FROM trade_outcomes ORDER BY entry_time ASC, trade_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all trade outcomes: %w", err)
	}
	defer rows.Close()

	return scanTradeOutcomes(rows)
}

func scanTradeOutcome(row pgx.Row) (*domain.RealizedOutcome, error) {
	var (
		o                              domain.RealizedOutcome
		direction, entryRule, stopMode string
		theoretical, outcome           string
	)

	err := row.Scan(
		&o.TradeID, &o.RangeID, &o.Instrument, &o.AnchorID, &o.Date, &direction,
		&entryRule, &stopMode, &o.Params.TargetMultiple, &o.Params.FilterThreshold,
		&o.EntryTime, &o.EntryPrice, &o.ExitTime, &o.ExitPrice, &o.MAE, &o.MFE,
		&theoretical, &outcome, &o.Viable, &o.ExclusionReason,
		&o.StopPoints, &o.TargetPoints, &o.FrictionDollars, &o.RiskDollars, &o.RewardDollars,
		&o.RealizedRR, &o.CostRatio, &o.RMultiple,
	)
	if err != nil {
		return nil, err
	}

	o.Direction = domain.Direction(direction)
	o.Params.EntryRule = domain.EntryRule(entryRule)
	o.Params.StopMode = domain.StopMode(stopMode)
	o.TheoreticalStatus = domain.TradeStatus(theoretical)
	o.Outcome = domain.TradeStatus(outcome)
	return &o, nil
}

func scanTradeOutcomes(rows pgx.Rows) ([]*domain.RealizedOutcome, error) {
	var out []*domain.RealizedOutcome
	for rows.Next() {
		o, err := scanTradeOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade outcome row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade outcome rows: %w", err)
	}
	return out, nil
}
