package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	envFile     string
	metricsAddr string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "orblab",
		Short: "Opening-range breakout backtests and walk-forward validation",
		Long: `orblab simulates opening-range breakout trades over historical bars and
decides, through a three-stage walk-forward gate, whether a strategy is
promotable.

It provides tools for:
  - Building opening ranges and breakout signals
  - Simulating one parameter set with cost-aware outcomes
  - Running validations, alone or in batches
  - Replaying stored outcomes to verify determinism
  - Reporting stored runs as Markdown or CSV`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&ro.configPath, "config", "", "config file, YAML or JSON (built-in defaults when empty)")
	f.StringVar(&ro.envFile, "env", ".env", "env file with DSN overrides, ignored when missing")
	f.StringVar(&ro.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.BoolVarP(&ro.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(
		newConfigCmd(ro),
		newMigrateCmd(ro),
		newIngestCmd(ro),
		newRangesCmd(ro),
		newSimulateCmd(ro),
		newValidateCmd(ro),
		newBatchCmd(ro),
		newVerifyCmd(ro),
		newRunsCmd(ro),
	)

	return cmd
}
