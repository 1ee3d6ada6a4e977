package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"breakout-lab/internal/config"
)

func newConfigCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration (YAML for .yaml/.yml, otherwise JSON)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "orblab.yaml", "output path")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(ro.configPath, ro.envFile)
			if err != nil {
				return err
			}
			if _, err := cfg.CostModel(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d instruments, %d anchors, %d grid combinations, backend %s\n",
				len(cfg.Instruments), len(cfg.Anchors), cfg.Grid().Size(), cfg.Storage.Backend)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
