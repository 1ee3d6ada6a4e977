package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"breakout-lab/internal/verification"
)

func newVerifyCmd(ro *rootOptions) *cobra.Command {
	var tradeID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay stored outcomes against a fresh simulation and report divergences",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := openApp(ctx, ro)
			if err != nil {
				return err
			}
			defer a.Close()

			simOpts, err := a.cfg.SimulationOptions()
			if err != nil {
				return err
			}
			verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
				OutcomeStore: a.outcomes,
				RangeStore:   a.ranges,
				BarStore:     a.bars,
				Model:        a.model,
				Simulation:   simOpts,
			})

			if tradeID != "" {
				result, err := verifier.VerifyTrade(ctx, tradeID)
				if err != nil {
					return err
				}
				printVerification(cmd, *result)
				if !result.Match {
					return fmt.Errorf("trade %s diverged", tradeID)
				}
				return nil
			}

			report, err := verifier.VerifyAll(ctx)
			if err != nil {
				return err
			}
			for _, r := range report.Results {
				if !r.Match || a.verbose {
					printVerification(cmd, r)
				}
			}
			fmt.Fprintf(out, "Verified %d trades: %d matched, %d diverged\n",
				report.TotalTrades, report.MatchedTrades, report.DivergentTrades)
			if report.DivergentTrades > 0 {
				return fmt.Errorf("%d trades diverged", report.DivergentTrades)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tradeID, "trade", "", "verify a single trade id")
	return cmd
}

func printVerification(cmd *cobra.Command, r verification.VerificationResult) {
	out := cmd.OutOrStdout()
	status := "MATCH"
	if !r.Match {
		status = "DIVERGED"
	}
	fmt.Fprintf(out, "%s  %s  stored %.6fR  replayed %.6fR\n", r.TradeID, status, r.StoredR, r.ReplayedR)
	for _, d := range r.Divergences {
		fmt.Fprintf(out, "    %-20s expected %v, got %v\n", d.Field, d.Expected, d.Actual)
	}
}
