package data

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/i-zrhe2016/amazing-3.1/internal/cli/config"
	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/market/dukascopy"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
)

func New(rc *config.RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Download, inspect and generate M5 histories",
	}

	cmd.AddCommand(
		NewFetchCmd(rc),
		newInspectCmd(rc),
		newSynthCmd(rc),
	)

	return cmd
}

// NewFetchCmd downloads Dukascopy candles into the merged-file cache.
func NewFetchCmd(rc *config.RootConfig) *cobra.Command {
	var fromStr, toStr string
	d := &rc.Cfg.Data
	o := &rc.Cfg.Optimize

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download M5 bid history and write the merged CSV",
		Long: `Fetch downloads minute candles from Dukascopy day by day, aggregates them
to M5, writes one part file per year and merges the parts into
<symbol>-m5-bid-<start>-<end>-merged.csv in --data-dir. Existing parts and
raw days are reused.

Example:
  amazing data fetch --symbol USDCHF --years 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rc.Load(cmd); err != nil {
				return err
			}
			meta, err := rc.Instrument()
			if err != nil {
				return errs.Param("symbol", "%v", err)
			}
			from, to := market.HistoryRange(time.Now().UTC(), o.Years)
			if fromStr != "" {
				if from, err = time.Parse(time.DateOnly, fromStr); err != nil {
					return errs.Param("from", "%v", err)
				}
			}
			if toStr != "" {
				if to, err = time.Parse(time.DateOnly, toStr); err != nil {
					return errs.Param("to", "%v", err)
				}
			}
			if !from.Before(to) {
				return errs.Param("from", "must be before --to")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path, err := dukascopy.NewFetcher(d.Dir).Fetch(ctx, meta, from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&d.Symbol, "symbol", d.Symbol, "Instrument")
	cmd.Flags().StringVar(&d.Dir, "data-dir", d.Dir, "Output directory")
	cmd.Flags().IntVar(&o.Years, "years", o.Years, "Years back from today")
	cmd.Flags().StringVar(&fromStr, "from", "", "Start date (2006-01-02), overrides --years")
	cmd.Flags().StringVar(&toStr, "to", "", "End date (2006-01-02), default today")

	return cmd
}

func newInspectCmd(rc *config.RootConfig) *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:   "inspect <file.csv>",
		Short: "Load a history and report its range and gaps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rc.SetupLogging(); err != nil {
				return err
			}
			gp, err := market.ParseGapPolicy(policy)
			if err != nil {
				return err
			}
			bs, err := market.LoadCSV(args[0], market.LoadOptions{GapPolicy: gp})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			bs.PrintStats(out)
			fmt.Fprintf(out, "Bars: %d\n", len(bs.Bars))
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "gap-policy", string(market.GapReport), "Gap handling: report|weekend|strict")
	return cmd
}

func newSynthCmd(rc *config.RootConfig) *cobra.Command {
	var (
		symbol   string
		startStr string
		out      string
		opts     = market.SynthOptions{Bars: 105_120, VolPips: 3, Seed: 1, SkipWeekends: true}
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a reproducible random-walk M5 history",
		Long: `Synth writes a seeded random-walk series in the history CSV format, for
smoke runs without downloaded data. 105120 bars is one year of M5 bars.

Example:
  amazing data synth --symbol USDCHF --start 2025-01-01 --price 0.9 --out download/usdchf-synth.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := market.Lookup(symbol)
			if err != nil {
				return errs.Param("symbol", "%v", err)
			}
			if opts.Start, err = time.Parse(time.DateOnly, startStr); err != nil {
				return errs.Param("start", "%v", err)
			}
			if opts.Bars < 1 {
				return errs.Param("bars", "must be at least 1")
			}
			if opts.Price <= 0 {
				return errs.Param("price", "must be positive")
			}
			if out == "" {
				return errs.Param("out", "is required")
			}
			bars := market.Synthetic(meta, opts)
			if err := market.WriteCSVFile(out, bars, meta.Digits); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s (%d bars, %s to %s)\n", out, len(bars),
				bars[0].Time().Format(time.DateOnly), bars[len(bars)-1].Time().Format(time.DateOnly))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&symbol, "symbol", rc.Cfg.Data.Symbol, "Instrument")
	f.StringVar(&startStr, "start", time.Now().UTC().AddDate(-1, 0, 0).Format(time.DateOnly), "First bar date")
	f.IntVar(&opts.Bars, "bars", opts.Bars, "Number of bars")
	f.Float64Var(&opts.Price, "price", 1.0, "First open")
	f.Float64Var(&opts.VolPips, "vol", opts.VolPips, "Per-bar volatility in pips")
	f.Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	f.BoolVar(&opts.SkipWeekends, "skip-weekends", opts.SkipWeekends, "Leave out weekend bars")
	f.StringVar(&out, "out", "", "Output CSV path")

	return cmd
}
