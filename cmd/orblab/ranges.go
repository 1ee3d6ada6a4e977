package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/ranges"
	"breakout-lab/internal/storage"
)

func newRangesCmd(ro *rootOptions) *cobra.Command {
	var (
		instrument string
		from, to   string
		anchorIDs  []string
		persist    bool
	)

	cmd := &cobra.Command{
		Use:   "ranges",
		Short: "Build opening ranges and detect breakouts",
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

			bars, err := a.bars.GetRange(ctx, instrument, dates.Start, dates.End)
			if err != nil {
				return fmt.Errorf("load bars: %w", err)
			}
			if len(bars) == 0 {
				return fmt.Errorf("%w: no %s bars in %s", domain.ErrInsufficientData, instrument, dates)
			}
			series, err := domain.NewBarSeries(instrument, bars)
			if err != nil {
				return err
			}

			builder := ranges.NewBuilder(series, loc)
			seq, err := builder.Build(instrument, dates, anchors)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%-10s  %-6s  %10s  %10s  %8s  %4s  %-5s  %s\n",
				"DATE", "ANCHOR", "HIGH", "LOW", "SIZE", "BARS", "BREAK", "AT")
			counts := make(map[domain.Direction]int)
			total, stored := 0, 0
			for r := range seq {
				sig := builder.Detect(r)
				at := "-"
				if sig.Direction != domain.DirectionNone {
					at = sig.BarTime.In(loc).Format("15:04")
				}
				fmt.Fprintf(out, "%-10s  %-6s  %10.2f  %10.2f  %8.2f  %4d  %-5s  %s\n",
					r.Date.Format(domain.DateLayout), r.AnchorID, r.High, r.Low, r.Size, r.BarCount, sig.Direction, at)
				counts[sig.Direction]++
				total++

				if persist {
					err := a.ranges.Insert(ctx, &r)
					switch {
					case err == nil:
						stored++
					case errors.Is(err, storage.ErrDuplicateKey):
					default:
						return fmt.Errorf("persist range %s: %w", r.RangeID, err)
					}
				}
			}

			fmt.Fprintf(out, "\n%d ranges: %d long, %d short, %d without breakout\n",
				total, counts[domain.DirectionLong], counts[domain.DirectionShort], counts[domain.DirectionNone])
			if persist {
				fmt.Fprintf(out, "%d ranges stored\n", stored)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&instrument, "instrument", "i", "", "instrument symbol")
	f.StringVar(&from, "from", "", "first trading date, YYYY-MM-DD")
	f.StringVar(&to, "to", "", "end trading date (exclusive), YYYY-MM-DD")
	f.StringSliceVar(&anchorIDs, "anchor", nil, "anchor ids (default all configured)")
	f.BoolVar(&persist, "persist", false, "store the ranges")
	return cmd
}
