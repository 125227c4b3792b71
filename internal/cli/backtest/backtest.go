package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	appconfig "github.com/i-zrhe2016/amazing-3.1/config"
	"github.com/i-zrhe2016/amazing-3.1/internal/cli/config"
	"github.com/i-zrhe2016/amazing-3.1/journal"
	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/monitoring"
	"github.com/i-zrhe2016/amazing-3.1/optimize"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/pkg/id"
	"github.com/i-zrhe2016/amazing-3.1/report"
	"github.com/i-zrhe2016/amazing-3.1/sim"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
	"github.com/i-zrhe2016/amazing-3.1/window"
)

type options struct {
	paramsPath  string
	strategy    string
	fromStr     string
	toStr       string
	ddStop      float64
	byWindow    bool
	equityEvery int

	orgPath  string
	xlsxPath string
	jsonPath string
}

func New(rc *config.RootConfig) *cobra.Command {
	var opts options
	d := &rc.Cfg.Data
	j := &rc.Cfg.Journal

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one parameter set over a history",
		Long: `Backtest runs the EA with the configured parameters (or a --params file,
e.g. an optimize result) over the loaded history on a single account and
prints the summary. With --by-window it runs the optimizer's window
evaluation instead and prints one row per window.

Example:
  amazing backtest --symbol USDCHF --params optimized_params_usdchf_10y_dd80.json --org run.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rc.Load(cmd); err != nil {
				return err
			}
			return run(cmd.Context(), cmd, rc, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.paramsPath, "params", "", "Parameter file (JSON or YAML); default the configured params")
	f.StringVar(&opts.strategy, "strategy", "amazing31", "Strategy: amazing31|noop")
	f.StringVar(&d.Symbol, "symbol", d.Symbol, "Instrument")
	f.StringVar(&d.File, "data-file", d.File, "Explicit M5 CSV; skips discovery in --data-dir")
	f.StringVar(&d.Dir, "data-dir", d.Dir, "Directory of merged history files")
	f.BoolVar(&d.AutoFetch, "auto-fetch", d.AutoFetch, "Download history when no merged file is found")
	f.StringVar(&d.GapPolicy, "gap-policy", d.GapPolicy, "Gap handling: report|weekend|strict")
	f.IntVar(&rc.Cfg.Optimize.Years, "years", rc.Cfg.Optimize.Years, "Years of history to discover or fetch")
	f.IntVar(&rc.Cfg.Optimize.WindowYears, "window-years", rc.Cfg.Optimize.WindowYears, "Window length for --by-window")
	f.StringVar(&opts.fromStr, "from", "", "Optional start (2006-01-02 or RFC3339)")
	f.StringVar(&opts.toStr, "to", "", "Optional end, exclusive")
	f.Float64Var(&opts.ddStop, "drawdown-stop", 0, "Stop the run at this drawdown percent (0 = never)")
	f.BoolVar(&opts.byWindow, "by-window", false, "Evaluate per window like the optimizer")
	f.IntVar(&opts.equityEvery, "equity-every", 12, "Journal every Nth bar's equity")

	f.StringVar(&j.Type, "journal", j.Type, "Journal: none|csv|sqlite")
	f.StringVar(&j.DBPath, "db", j.DBPath, "SQLite journal path")
	f.StringVar(&j.TradesFile, "trades", j.TradesFile, "CSV journal trades path")
	f.StringVar(&j.EquityFile, "equity", j.EquityFile, "CSV journal equity path")
	f.StringVar(&opts.orgPath, "org", "", "Write an Org summary")
	f.StringVar(&opts.xlsxPath, "xlsx", "", "Write trades and equity to an Excel workbook")
	f.StringVar(&opts.jsonPath, "json", "", "Write the full result as JSON")
	f.StringVar(&rc.Cfg.Metrics.Addr, "metrics-addr", rc.Cfg.Metrics.Addr, "Serve Prometheus metrics on this address while running")

	return cmd
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}

func run(ctx context.Context, cmd *cobra.Command, rc *config.RootConfig, opts options) error {
	cfg := rc.Cfg

	from, err := parseTime(opts.fromStr)
	if err != nil {
		return errs.Param("from", "%v", err)
	}
	to, err := parseTime(opts.toStr)
	if err != nil {
		return errs.Param("to", "%v", err)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return errs.Param("from", "must be before --to")
	}
	if opts.ddStop < 0 || opts.ddStop >= 100 {
		return errs.Param("drawdown_stop", "must be in [0, 100)")
	}

	params := cfg.Params
	if opts.paramsPath != "" {
		if params, err = LoadParams(opts.paramsPath, cfg.Params); err != nil {
			return err
		}
	}
	decider, err := strategy.ByName(opts.strategy, params)
	if err != nil {
		return errs.Param("strategy", "%v", err)
	}

	meta, err := rc.Instrument()
	if err != nil {
		return errs.Param("symbol", "%v", err)
	}
	// Discovery and fetching need a range; --from/--to only narrow the
	// loaded file.
	dFrom, dTo := market.HistoryRange(time.Now().UTC(), cfg.Optimize.Years)
	path, err := rc.DataFile(ctx, meta, dFrom, dTo)
	if err != nil {
		return err
	}
	rc.Cfg.Data.File = path
	bs, bars, err := rc.LoadBars(ctx, meta, from, to)
	if err != nil {
		return err
	}

	wcfg := rc.WindowConfig(meta, opts.ddStop)
	wcfg.Strategy = opts.strategy

	if opts.byWindow {
		return runWindows(ctx, cmd, rc, wcfg, bars, params)
	}

	metrics := monitoring.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	w := window.Window{Index: 1, Start: bars[0].Timestamp, End: bars[len(bars)-1].Timestamp + 1, Bars: bars}
	ev, err := window.NewEvaluator(wcfg, []window.Window{w})
	if err != nil {
		return err
	}

	runID := id.New()
	jr, sqlite, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer jr.Close()

	res, err := ev.Run(ctx, w, decider, sim.Options{
		RecordCurve:  opts.xlsxPath != "" || opts.jsonPath != "",
		RecordTrades: true,
		Journal:      jr,
		RunID:        runID,
		EquityEvery:  opts.equityEvery,
	})
	if err != nil {
		return err
	}
	metrics.ObserveBacktest(res)

	pj, _ := json.MarshalIndent(params, "", "  ")
	summary := backtestRun(runID, meta, bs, opts.strategy, string(pj), res)

	if sqlite != nil {
		if err := sqlite.RecordRun(journal.RunRecord{
			RunID:      runID,
			Kind:       "backtest",
			Created:    summary.Created,
			Symbol:     meta.Name,
			DataFile:   bs.Path,
			Algorithm:  opts.strategy,
			Years:      cfg.Optimize.Years,
			BestScore:  res.Summary.NetProfit,
			BestParams: string(pj),
		}); err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
	}
	if opts.orgPath != "" {
		if err := summary.WriteOrg(opts.orgPath); err != nil {
			return err
		}
	}
	if opts.xlsxPath != "" {
		if err := report.WriteBacktestXLSX(opts.xlsxPath, res); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
	}
	if opts.jsonPath != "" {
		if err := report.WriteJSON(opts.jsonPath, res); err != nil {
			return err
		}
	}

	report.PrintBacktest(cmd.OutOrStdout(), summary)
	return nil
}

// runWindows prints the per-window breakdown the optimizer would score.
func runWindows(ctx context.Context, cmd *cobra.Command, rc *config.RootConfig, wcfg window.Config, bars []market.Bar, params strategy.Params) error {
	o := rc.Cfg.Optimize
	windows := window.Split(bars, max(1, o.Years/max(1, o.WindowYears)), time.Duration(max(1, o.WindowYears))*window.Year)
	if len(windows) == 0 {
		return errs.Data("split", rc.Cfg.Data.File, "no windows")
	}
	ev, err := window.NewEvaluator(wcfg, windows)
	if err != nil {
		return err
	}
	years, err := ev.Evaluate(ctx, params)
	if err != nil {
		return err
	}
	mode, err := optimize.ParseMode(o.Mode)
	if err != nil {
		return err
	}
	obj := optimize.Objective{Mode: mode, DrawdownLimitPct: o.DrawdownLimit, TargetReturnPct: o.TargetReturn}
	agg := window.Summarize(years, ev.Limits())
	t := optimize.Trial{
		Phase:     "backtest",
		Score:     obj.Score(agg),
		Feasible:  obj.Feasible(agg),
		Params:    params,
		Aggregate: agg,
		Years:     years,
	}
	out := cmd.OutOrStdout()
	report.PrintTrials(out, "BACKTEST", []optimize.Trial{t})
	report.PrintYears(out, "BY WINDOW", years)
	return nil
}

// openJournal returns the configured journal; sqlite is non-nil when the
// journal can also record runs.
func openJournal(c appconfig.JournalConfig) (journal.Journal, *journal.SQLite, error) {
	switch c.Type {
	case "sqlite":
		db, err := journal.NewSQLite(c.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return db, db, nil
	case "csv":
		j, err := journal.NewCSV(c.TradesFile, c.EquityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open csv journal: %w", err)
		}
		return j, nil, nil
	}
	return journal.Discard, nil, nil
}

func backtestRun(runID string, meta market.InstrumentMeta, bs *market.BarSet, strat, params string, res sim.Result) journal.BacktestRun {
	s := res.Summary
	v := journal.BacktestRun{
		RunID:            runID,
		Created:          time.Now().UTC(),
		Instrument:       meta.Name,
		Strategy:         strat,
		Dataset:          bs.Path,
		Timeframe:        market.TimeframeLabel(bs.Timeframe),
		Params:           params,
		Start:            time.UnixMilli(s.Start).UTC(),
		End:              time.UnixMilli(s.End).UTC(),
		Trades:           s.Trades,
		Wins:             s.Wins,
		Losses:           s.Losses,
		StartBalance:     s.StartBalance,
		EndBalance:       s.FinalBalance,
		NetPL:            s.NetProfit,
		ReturnPct:        s.ReturnPct,
		WinRate:          s.WinRate,
		ProfitFactor:     s.ProfitFactor,
		MaxDDPct:         s.MaxDrawdownPct,
		MinFreeMargin:    s.MinFreeMargin,
		DrawdownLimitHit: res.DrawdownLimitHit,
	}
	if res.Blowup != nil {
		v.BlowupTime = time.UnixMilli(res.Blowup.Timestamp).UTC().Format(time.DateTime)
		v.Notes = append(v.Notes, fmt.Sprintf("blow-up at bar %d, equity %.2f", res.Blowup.BarIndex, res.Blowup.Equity))
	}
	return v
}
