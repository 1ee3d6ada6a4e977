package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"breakout-lab/internal/storage/csvbars"
)

func newIngestCmd(ro *rootOptions) *cobra.Command {
	var (
		instrument string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a CSV bar file (time,open,high,low,close[,volume]) into ClickHouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			if instrument == "" || file == "" {
				return errors.New("--instrument and --file are required")
			}
			ctx := cmd.Context()

			a, err := openApp(ctx, ro)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Storage.ClickHouseDSN == "" {
				return errors.New("ingest needs a persistent bar store: set CLICKHOUSE_DSN")
			}

			instrument = strings.ToUpper(instrument)
			loc, err := a.location(instrument)
			if err != nil {
				return err
			}
			bars, err := csvbars.Load(file, instrument, loc)
			if err != nil {
				return err
			}
			if err := a.bars.InsertBulk(ctx, bars); err != nil {
				return fmt.Errorf("insert bars: %w", err)
			}
			a.metrics.RecordBars(instrument, len(bars))

			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d %s bars", len(bars), instrument)
			if len(bars) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s to %s)",
					bars[0].Timestamp.In(loc).Format("2006-01-02 15:04"),
					bars[len(bars)-1].Timestamp.In(loc).Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVarP(&instrument, "instrument", "i", "", "instrument symbol")
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV bar file")
	return cmd
}
