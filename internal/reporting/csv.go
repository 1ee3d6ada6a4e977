package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"breakout-lab/internal/domain"
)

// RenderRunsCSV renders the runs table as CSV string.
func RenderRunsCSV(runs []RunRow) string {
	rows := [][]string{{
		"run_id", "name", "instrument", "anchor_id", "attempt", "verdict",
		"failed_stage", "failure_reason", "optimal", "degradation", "data_version", "completed_at",
	}}
	for _, r := range runs {
		deg := ""
		if r.Degradation != nil {
			deg = float(*r.Degradation)
		}
		rows = append(rows, []string{
			r.RunID, r.Name, r.Instrument, r.AnchorID, strconv.Itoa(r.Attempt), string(r.Verdict),
			string(r.FailedStage), r.FailureReason, r.Optimal, deg, r.DataVersion, r.CompletedAt.UTC().Format(time.RFC3339),
		})
	}
	return render(rows)
}

// RenderSplitMetricsCSV renders per-split statistics as CSV string.
func RenderSplitMetricsCSV(metrics []SplitMetricRow) string {
	rows := [][]string{{
		"run_id", "split", "sample_size", "wins", "losses", "win_rate", "expectancy",
		"median_r", "p10_r", "p90_r", "max_drawdown_r", "max_consecutive_losses", "unviable",
	}}
	for _, m := range metrics {
		rows = append(rows, []string{
			m.RunID, m.Split, strconv.Itoa(m.SampleSize), strconv.Itoa(m.Wins), strconv.Itoa(m.Losses),
			float(m.WinRate), float(m.Expectancy), float(m.MedianR), float(m.P10R), float(m.P90R),
			float(m.MaxDrawdownR), strconv.Itoa(m.MaxConsecutiveLosses), strconv.Itoa(m.Unviable),
		})
	}
	return render(rows)
}

// RenderGridCSV renders an evaluated grid as CSV string.
func RenderGridCSV(grid []domain.GridResult) string {
	rows := [][]string{{
		"run_id", "grid_index", "entry_rule", "stop_mode", "target_multiple", "filter_threshold",
		"sample_size", "wins", "losses", "win_rate", "expectancy", "unviable", "eligible", "selected",
	}}
	for _, g := range grid {
		rows = append(rows, []string{
			g.RunID, strconv.Itoa(g.GridIndex), string(g.Params.EntryRule), string(g.Params.StopMode),
			float(g.Params.TargetMultiple), float(g.Params.FilterThreshold),
			strconv.Itoa(g.SampleSize), strconv.Itoa(g.Wins), strconv.Itoa(g.Losses),
			float(g.WinRate), float(g.Expectancy), strconv.Itoa(g.Unviable),
			strconv.FormatBool(g.Eligible), strconv.FormatBool(g.Selected),
		})
	}
	return render(rows)
}

// RenderOutcomesCSV renders realized outcomes as CSV string.
func RenderOutcomesCSV(outcomes []*domain.RealizedOutcome) string {
	rows := [][]string{{
		"trade_id", "range_id", "instrument", "anchor_id", "date", "direction",
		"entry_rule", "stop_mode", "target_multiple", "filter_threshold",
		"entry_time", "entry_price", "exit_time", "exit_price", "mae", "mfe",
		"theoretical_status", "outcome", "viable", "exclusion_reason",
		"friction_dollars", "risk_dollars", "reward_dollars", "realized_rr", "cost_ratio", "r_multiple",
	}}
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.TradeID, o.RangeID, o.Instrument, o.AnchorID, o.Date.Format(domain.DateLayout), string(o.Direction),
			string(o.Params.EntryRule), string(o.Params.StopMode), float(o.Params.TargetMultiple), float(o.Params.FilterThreshold),
			timestamp(o.EntryTime), float(o.EntryPrice), timestamp(o.ExitTime), float(o.ExitPrice), float(o.MAE), float(o.MFE),
			string(o.TheoreticalStatus), string(o.Outcome), strconv.FormatBool(o.Viable), o.ExclusionReason,
			float(o.FrictionDollars), float(o.RiskDollars), float(o.RewardDollars), float(o.RealizedRR), float(o.CostRatio), float(o.RMultiple),
		})
	}
	return render(rows)
}

func render(rows [][]string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	// strings.Builder writes never fail
	_ = w.WriteAll(rows)
	return sb.String()
}

func float(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
