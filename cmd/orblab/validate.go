package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"breakout-lab/internal/decision"
	"breakout-lab/internal/idhash"
	"breakout-lab/internal/validation"
)

func newValidateCmd(ro *rootOptions) *cobra.Command {
	var (
		instrument string
		anchorID   string
		name       string
		attempt    int
		supersedes string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the three-stage walk-forward validation for one instrument and anchor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if instrument == "" {
				return errors.New("--instrument is required")
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
			split, err := a.cfg.Split(loc)
			if err != nil {
				return err
			}
			if anchorID == "" {
				anchorID = a.cfg.Anchors[0].ID
			}
			anchor, err := a.cfg.Anchor(anchorID)
			if err != nil {
				return err
			}
			if name == "" {
				name = fmt.Sprintf("%s-%s", instrument, anchor.ID)
			}

			pipeline, err := a.pipeline()
			if err != nil {
				return err
			}
			req := validation.Request{
				Name:       name,
				Instrument: instrument,
				Anchor:     anchor,
				Split:      split,
				Grid:       a.cfg.Grid(),
				Baseline:   a.cfg.Baseline(),
				Attempt:    attempt,
				Supersedes: supersedes,
			}

			run, err := pipeline.Run(ctx, req)
			if err != nil {
				return fmt.Errorf("run %s: %w", idhash.ShortID(validation.RunID(req)), err)
			}

			if err := writeOutput(out, output, decision.RenderMarkdown(run)); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(out, "Run %s: %s, report written to %s\n", idhash.ShortID(run.RunID), run.Verdict, output)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&instrument, "instrument", "i", "", "instrument symbol")
	f.StringVar(&anchorID, "anchor", "", "anchor id (default the first configured)")
	f.StringVar(&name, "name", "", "run name (default <instrument>-<anchor>)")
	f.IntVar(&attempt, "attempt", 1, "attempt number; attempts after the first supersede the previous one")
	f.StringVar(&supersedes, "supersedes", "", "run id this attempt supersedes (default the previous attempt)")
	f.StringVarP(&output, "output", "o", "", "write the Markdown report to this path")
	return cmd
}
