package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/idhash"
	"breakout-lab/internal/orchestrator"
)

func newBatchCmd(ro *rootOptions) *cobra.Command {
	var (
		name        string
		symbols     []string
		anchorIDs   []string
		attempt     int
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Validate every instrument at every anchor in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := openApp(ctx, ro)
			if err != nil {
				return err
			}
			defer a.Close()

			instruments := a.instruments(symbols)
			anchors, err := a.anchors(anchorIDs)
			if err != nil {
				return err
			}
			if len(instruments) == 0 {
				return fmt.Errorf("%w: no allowed instrument configured", domain.ErrInvalidParams)
			}

			// Split dates are trading dates in each instrument's own timezone.
			// Unknown instruments keep the UTC split and fail in their own run.
			fallback, err := a.cfg.Split(time.UTC)
			if err != nil {
				return err
			}
			splits := make(map[string]domain.SplitConfig, len(instruments))
			for _, inst := range instruments {
				loc, err := a.location(inst)
				if err != nil {
					continue
				}
				if splits[inst], err = a.cfg.Split(loc); err != nil {
					return err
				}
			}

			pipeline, err := a.pipeline()
			if err != nil {
				return err
			}
			orch, err := orchestrator.New(orchestrator.Options{
				Runner:      pipeline,
				Metrics:     a.metrics,
				Parallelism: parallelism,
				Verbose:     a.verbose,
			})
			if err != nil {
				return err
			}

			result, err := orch.Run(ctx, orchestrator.Plan{
				Name:        name,
				Instruments: instruments,
				Anchors:     anchors,
				Split:       fallback,
				Splits:      splits,
				Grid:        a.cfg.Grid(),
				Baseline:    a.cfg.Baseline(),
				Attempt:     attempt,
			})
			if err != nil && result == nil {
				return err
			}

			fmt.Fprintf(out, "=== Batch %s (%s) ===\n", result.BatchID, result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
			fmt.Fprintf(out, "%-24s  %-12s  %-10s  %-16s  %s\n", "NAME", "RUN", "STATUS", "FAILED STAGE", "REASON")
			for _, r := range result.Runs {
				stage, reason := "-", ""
				if r.Run != nil && r.Run.FailedStage != "" {
					stage, reason = string(r.Run.FailedStage), r.Run.FailureReason
				}
				if r.Err != nil {
					reason = r.Err.Error()
				}
				fmt.Fprintf(out, "%-24s  %-12s  %-10s  %-16s  %s\n",
					r.Request.Name, idhash.ShortID(r.RunID), r.Status, stage, reason)
			}
			fmt.Fprintf(out, "\n%d promotable, %d rejected, %d failed\n", result.Promotable, result.Rejected, result.Failed)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "batch", "batch name, prefixed to every run name")
	f.StringSliceVar(&symbols, "instruments", nil, "instrument symbols (default all allowed)")
	f.StringSliceVar(&anchorIDs, "anchor", nil, "anchor ids (default all configured)")
	f.IntVar(&attempt, "attempt", 1, "attempt number for every run")
	f.IntVarP(&parallelism, "parallelism", "p", 0, "concurrent runs (default GOMAXPROCS)")
	return cmd
}
