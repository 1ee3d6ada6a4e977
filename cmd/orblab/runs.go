package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"breakout-lab/internal/idhash"
	"breakout-lab/internal/reporting"
	"breakout-lab/internal/storage"
)

func newRunsCmd(ro *rootOptions) *cobra.Command {
	var (
		runID  string
		format string
		splits bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Report stored validation runs as Markdown or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			format = strings.ToLower(format)
			if format != "markdown" && format != "csv" {
				return fmt.Errorf("unknown --format %q: want markdown or csv", format)
			}

			a, err := openApp(ctx, ro)
			if err != nil {
				return err
			}
			defer a.Close()

			gen := reporting.NewGenerator(a.runs, a.grids)

			if runID != "" {
				id, err := resolveRunID(cmd, a.runs, runID)
				if err != nil {
					return err
				}
				rr, err := gen.GenerateRun(ctx, id)
				if err != nil {
					return err
				}
				if format == "csv" {
					return writeOutput(out, output, reporting.RenderGridCSV(rr.Grid))
				}
				return writeOutput(out, output, reporting.RenderRunMarkdown(rr))
			}

			report, err := gen.Generate(ctx)
			if err != nil {
				return err
			}
			switch {
			case format == "markdown":
				return writeOutput(out, output, reporting.RenderMarkdown(report))
			case splits:
				return writeOutput(out, output, reporting.RenderSplitMetricsCSV(report.SplitMetrics))
			default:
				return writeOutput(out, output, reporting.RenderRunsCSV(report.Runs))
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&runID, "run", "", "report one run by id or short id")
	f.StringVar(&format, "format", "markdown", "markdown or csv")
	f.BoolVar(&splits, "splits", false, "with --format csv, export per-split metrics instead of runs")
	f.StringVarP(&output, "output", "o", "", "write to this path instead of stdout")
	return cmd
}

// resolveRunID accepts a full run id, its base58 short id or a unique prefix of either.
func resolveRunID(cmd *cobra.Command, store storage.ValidationRunStore, ref string) (string, error) {
	runs, err := store.List(cmd.Context())
	if err != nil {
		return "", err
	}
	var matches []string
	for _, r := range runs {
		if r.RunID == ref || idhash.ShortID(r.RunID) == ref {
			return r.RunID, nil
		}
		if strings.HasPrefix(r.RunID, ref) || strings.HasPrefix(idhash.ShortID(r.RunID), ref) {
			matches = append(matches, r.RunID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("run %q: %w", ref, storage.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run %q is ambiguous: %d matches", ref, len(matches))
	}
}
