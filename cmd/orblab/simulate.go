package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"breakout-lab/internal/decision"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/reporting"
	"breakout-lab/internal/simulation"
)

func newSimulateCmd(ro *rootOptions) *cobra.Command {
	var (
		instrument string
		from, to   string
		anchorIDs  []string
		entryRule  string
		stopMode   string
		target     float64
		filter     float64
		csvPath    string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate one parameter set and print outcome statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if instrument == "" || from == "" || to == "" {
				return errors.New("--instrument, --from and --to are required")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := openApp(ctx, ro)
			if err != nil {
				return err
			}
			defer a.Close()

			instrument = strings.ToUpper(instrument)
			loc, err := a.location(instrument)
			if err != nil {
				return err
			}
			dates, err := parseDates(from, to, loc)
			if err != nil {
				return err
			}
			anchors, err := a.anchors(anchorIDs)
			if err != nil {
				return err
			}
			simOpts, err := a.cfg.SimulationOptions()
			if err != nil {
				return err
			}

			// Unset flags fall back to the configured baseline.
			params := a.cfg.Baseline()
			if entryRule != "" {
				params.EntryRule = domain.EntryRule(strings.ToUpper(entryRule))
			}
			if stopMode != "" {
				params.StopMode = domain.StopMode(strings.ToUpper(stopMode))
			}
			if target > 0 {
				params.TargetMultiple = target
			}
			params.FilterThreshold = filter

			runner := simulation.NewRunner(simulation.RunnerOptions{
				Model:        a.model,
				BarStore:     a.bars,
				RangeStore:   a.ranges,
				OutcomeStore: a.outcomes,
				Simulation:   simOpts,
			})
			summary, err := runner.Run(ctx, instrument, dates, anchors, params)
			if err != nil {
				return err
			}
			a.metrics.RecordBars(instrument, summary.Bars)

			b, s := summary.Batch, summary.Stats
			a.metrics.RecordTrades("win", s.Wins)
			a.metrics.RecordTrades("loss", s.Losses)
			a.metrics.RecordTrades("unviable", s.Unviable)
			a.metrics.RecordTrades("no_entry", b.NoEntry)
			a.metrics.RecordTrades("unresolved", b.Unresolved)

			fmt.Fprintf(out, "=== %s %s ===\n", instrument, summary.Dates)
			fmt.Fprintf(out, "Params:      %s\n", decision.ParamsLabel(params))
			fmt.Fprintf(out, "Bars:        %d\n", summary.Bars)
			fmt.Fprintf(out, "Ranges:      %d (%d without breakout)\n", len(summary.Ranges), b.NoSignal)
			fmt.Fprintf(out, "Signals:     %d\n", b.Signals)
			fmt.Fprintf(out, "Trades:      %d (%d wins, %d losses, %d downgraded)\n", s.SampleSize, s.Wins, s.Losses, b.Downgraded)
			fmt.Fprintf(out, "Excluded:    %d unviable, %d no entry, %d unresolved, %d filtered\n",
				s.Unviable, s.NoEntry, s.Unresolved, s.Filtered)
			fmt.Fprintf(out, "Expectancy:  %.4fR\n", s.Expectancy)
			fmt.Fprintf(out, "Win rate:    %.2f%%\n", s.WinRate*100)
			fmt.Fprintf(out, "Median R:    %.4f  (P10 %.4f, P90 %.4f, stddev %.4f)\n", s.MedianR, s.P10R, s.P90R, s.StddevR)
			fmt.Fprintf(out, "Total R:     %.4f  (max drawdown %.4fR, max losing streak %d)\n",
				s.TotalR, s.MaxDrawdownR, s.MaxConsecutiveLosses)
			fmt.Fprintf(out, "Persisted:   %d outcomes\n", summary.Persisted)

			if csvPath != "" {
				outcomes := make([]*domain.RealizedOutcome, len(b.Outcomes))
				for i := range b.Outcomes {
					outcomes[i] = &b.Outcomes[i]
				}
				if err := writeOutput(out, csvPath, reporting.RenderOutcomesCSV(outcomes)); err != nil {
					return err
				}
				fmt.Fprintf(out, "Outcomes written to %s\n", csvPath)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&instrument, "instrument", "i", "", "instrument symbol")
	f.StringVar(&from, "from", "", "first trading date, YYYY-MM-DD")
	f.StringVar(&to, "to", "", "end trading date (exclusive), YYYY-MM-DD")
	f.StringSliceVar(&anchorIDs, "anchor", nil, "anchor ids (default all configured)")
	f.StringVar(&entryRule, "entry", "", "entry rule: NEXT_OPEN, BREAKOUT_CLOSE, CONFIRMATION or RETEST")
	f.StringVar(&stopMode, "stop", "", "stop mode: FULL or HALF")
	f.Float64Var(&target, "target", 0, "target multiple of risk")
	f.Float64Var(&filter, "filter", 0, "minimum opening-range size in points")
	f.StringVar(&csvPath, "csv", "", "write outcomes as CSV to this path")
	return cmd
}
