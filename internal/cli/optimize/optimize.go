package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
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
	"github.com/i-zrhe2016/amazing-3.1/window"
)

type searcher interface {
	Run(ctx context.Context) (optimize.Result, error)
	Pool() *optimize.WorkerPool
}

func New(rc *config.RootConfig) *cobra.Command {
	var (
		space   string
		noSeeds bool
		top     int
	)
	o := &rc.Cfg.Optimize
	d := &rc.Cfg.Data

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search EA parameters over yearly windows of history",
		Long: `Optimize evaluates candidate parameter sets on consecutive windows of the
last --years of M5 history and keeps the best set that satisfies the mode's
constraints (no blow-up; drawdown below --drawdown-limit; return target).

Example:
  amazing optimize --symbol USDCHF --years 10 --trials 120 --drawdown-limit 80`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rc.Load(cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("space") {
				rc.Cfg.Optimize.Space = splitList(space)
				if err := rc.Cfg.Validate(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, rc, !noSeeds, top)
		},
	}

	f := cmd.Flags()
	f.StringVar(&d.Symbol, "symbol", d.Symbol, "Instrument, e.g. USDCHF or AUD_NZD")
	f.StringVar(&d.File, "data-file", d.File, "Explicit M5 CSV; skips discovery in --data-dir")
	f.StringVar(&d.Dir, "data-dir", d.Dir, "Directory of merged history files")
	f.BoolVar(&d.AutoFetch, "auto-fetch", d.AutoFetch, "Download history when no merged file is found")
	f.StringVar(&d.GapPolicy, "gap-policy", d.GapPolicy, "Gap handling: report|weekend|strict")

	f.IntVar(&o.Years, "years", o.Years, "Years of history")
	f.IntVar(&o.WindowYears, "window-years", o.WindowYears, "Length of one evaluation window in years")
	f.IntVar(&o.Trials, "trials", o.Trials, "Trial budget (>= 1)")
	f.Uint64Var(&o.Seed, "seed", o.Seed, "Random seed")
	f.Float64Var(&o.DrawdownLimit, "drawdown-limit", o.DrawdownLimit, "Max drawdown per window in percent")
	f.Float64Var(&o.TargetReturn, "target-return", o.TargetReturn, "Per-window return target in percent (target mode)")
	f.StringVar(&o.Algorithm, "algorithm", o.Algorithm, "Search: random|adaptive")
	f.StringVar(&o.Mode, "mode", o.Mode, "Objective: no_blowup|drawdown|target")
	f.IntVar(&o.Workers, "workers", o.Workers, "Parallel evaluations (0 = one per CPU)")
	f.IntVar(&o.Batch, "batch", o.Batch, "Candidates per batch; fixes the result independent of --workers")
	f.BoolVar(&o.StopOnFailure, "stop-on-failure", o.StopOnFailure, "Skip the remaining windows after a blow-up or drawdown stop")
	f.StringVar(&space, "space", "", "Comma separated dimensions to search, or \"all\" (default step,lot,k_lot)")
	f.BoolVar(&noSeeds, "no-seeds", false, "Do not evaluate the built-in seed sets first")
	f.IntVar(&o.HoldoutYears, "holdout-years", o.HoldoutYears, "Re-rank the best sets on windows of this many years (0 = off)")
	f.IntVar(&o.HoldoutTop, "holdout-top", o.HoldoutTop, "Number of sets to re-rank")

	f.StringVar(&o.Out, "out", o.Out, "Result JSON path (default optimized_params_<symbol>_<years>y_dd<limit>.json)")
	f.StringVar(&o.XLSX, "xlsx", o.XLSX, "Also write an Excel workbook")
	f.StringVar(&rc.Cfg.Journal.DBPath, "db", rc.Cfg.Journal.DBPath, "Record the run and every trial in this SQLite file")
	f.StringVar(&rc.Cfg.Metrics.Addr, "metrics-addr", rc.Cfg.Metrics.Addr, "Serve Prometheus metrics on this address while running")
	f.IntVar(&top, "top", 10, "Number of best trials to print")

	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultOut names the result file after symbol, history and limit.
func DefaultOut(ticker string, years int, ddLimit float64) string {
	return fmt.Sprintf("optimized_params_%s_%dy_dd%g.json", ticker, years, ddLimit)
}

func run(ctx context.Context, cmd *cobra.Command, rc *config.RootConfig, withSeeds bool, top int) error {
	cfg := rc.Cfg
	o := cfg.Optimize

	if o.WindowYears > o.Years {
		return errs.Param("window_years", "must not exceed years (%d > %d)", o.WindowYears, o.Years)
	}
	meta, err := rc.Instrument()
	if err != nil {
		return errs.Param("symbol", "%v", err)
	}
	mode, err := optimize.ParseMode(o.Mode)
	if err != nil {
		return err
	}
	obj := optimize.Objective{Mode: mode, DrawdownLimitPct: o.DrawdownLimit, TargetReturnPct: o.TargetReturn}
	space, err := cfg.Space()
	if err != nil {
		return err
	}

	from, to := market.HistoryRange(time.Now().UTC(), o.Years)
	bs, bars, err := rc.LoadBars(ctx, meta, from, to.AddDate(0, 0, 1))
	if err != nil {
		return err
	}

	// Only the drawdown objective stops a window at the limit.
	var ddStop float64
	if mode == optimize.ModeDrawdown {
		ddStop = o.DrawdownLimit
	}
	wcfg := rc.WindowConfig(meta, ddStop)
	ev, err := evaluator(wcfg, obj, bars, o.Years/o.WindowYears, o.WindowYears)
	if err != nil {
		return err
	}

	runID := id.New()
	metrics := monitoring.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	var db *journal.SQLite
	if cfg.Journal.Type == "sqlite" {
		if db, err = journal.NewSQLite(cfg.Journal.DBPath); err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
	}

	scfg := optimize.Config{
		Trials:  o.Trials,
		Seed:    o.Seed,
		Workers: o.Workers,
		Batch:   o.Batch,
		Space:   space,
		Base:    cfg.Params,
		Bounds:  o.Bounds,
		OnBatch: metrics.ObserveBatch,
		OnTrial: func(t optimize.Trial) {
			metrics.ObserveTrial(t)
			if db == nil {
				return
			}
			if err := db.RecordTrial(trialRecord(runID, t)); err != nil {
				log.Warn().Err(err).Int("seq", t.Seq).Msg("journal trial")
			}
		},
	}
	if withSeeds {
		scfg.Seeds = optimize.Seeds()
	}

	var s searcher
	switch o.Algorithm {
	case optimize.AlgoRandom:
		s, err = optimize.NewRandomSearch(scfg, ev)
	default:
		s, err = optimize.NewAdaptiveSearch(scfg, ev)
	}
	if err != nil {
		return err
	}
	pool := s.Pool()
	pool.OnDone = metrics.ObserveEvaluation

	log.Info().Str("run_id", runID).Str("symbol", meta.Name).Str("algorithm", o.Algorithm).
		Str("mode", string(mode)).Int("trials", o.Trials).Int("workers", pool.Workers()).
		Int("windows", len(ev.Windows.Windows())).Msg("optimize started")

	res, err := s.Run(ctx)
	if err != nil {
		return err
	}

	var holdout []optimize.HoldoutResult
	if o.HoldoutYears > 0 && !res.Interrupted {
		holdout, err = validate(ctx, wcfg, obj, bars, o, res, pool)
		if err != nil {
			return err
		}
	}

	ticker := meta.Ticker()
	rep := report.NewOptimizeReport(report.Meta{
		RunID:       runID,
		Symbol:      strings.ToUpper(ticker),
		DataFile:    bs.Path,
		Years:       o.Years,
		WindowYears: o.WindowYears,
		Trials:      o.Trials,
		Seed:        o.Seed,
		Algorithm:   res.Algorithm,
		Workers:     pool.Workers(),
		Generated:   time.Now().UTC(),
	}, obj, res, holdout)

	out := o.Out
	if out == "" {
		out = DefaultOut(ticker, o.Years, o.DrawdownLimit)
	}
	if err := report.WriteJSON(out, rep); err != nil {
		return err
	}
	if o.XLSX != "" {
		if err := report.WriteOptimizeXLSX(o.XLSX, rep, res.TopAll); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
	}
	if db != nil {
		if err := db.RecordRun(runRecord(rep, cfg.Data.Symbol)); err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
	}

	w := cmd.OutOrStdout()
	report.PrintOptimize(w, rep)
	if top > 0 && len(res.TopAll) > 0 {
		report.PrintTrials(w, "TOP TRIALS", res.TopAll[:min(top, len(res.TopAll))])
	}
	fmt.Fprintf(w, "Saved: %s\n", out)
	if res.Interrupted {
		log.Warn().Int("evaluated", res.Evaluated).Msg("search interrupted, partial result saved")
	}
	return nil
}

func evaluator(wcfg window.Config, obj optimize.Objective, bars []market.Bar, count, years int) (optimize.WindowEvaluator, error) {
	windows, err := window.SplitYears(bars, count, years)
	if err != nil {
		return optimize.WindowEvaluator{}, err
	}
	wev, err := window.NewEvaluator(wcfg, windows)
	if err != nil {
		return optimize.WindowEvaluator{}, err
	}
	return optimize.WindowEvaluator{Windows: wev, Objective: obj}, nil
}

// validate re-scores the elite on longer windows of the same history.
func validate(ctx context.Context, wcfg window.Config, obj optimize.Objective, bars []market.Bar,
	o appconfig.OptimizeConfig, res optimize.Result, pool *optimize.WorkerPool) ([]optimize.HoldoutResult, error) {
	count := o.Years / o.HoldoutYears
	if count < 1 {
		return nil, errs.Param("holdout_years", "must not exceed years (%d > %d)", o.HoldoutYears, o.Years)
	}
	ev, err := evaluator(wcfg, obj, bars, count, o.HoldoutYears)
	if err != nil {
		return nil, err
	}
	return optimize.Validate(ctx, ev, res.Elite(), o.HoldoutTop, pool)
}

func trialRecord(runID string, t optimize.Trial) journal.TrialRecord {
	params, _ := json.Marshal(t.Params)
	a := t.Aggregate
	return journal.TrialRecord{
		RunID:       runID,
		Seq:         t.Seq,
		Phase:       t.Phase,
		Score:       t.Score,
		Feasible:    t.Feasible,
		Fingerprint: t.Fingerprint,
		SumNet:      a.SumNetProfit,
		MinYearNet:  a.MinYearNetProfit,
		WorstDD:     a.WorstYearMaxDrawdownPct,
		BlowupYears: a.BlowupYears,
		YearsRan:    a.YearsRan,
		Params:      string(params),
	}
}

func runRecord(r report.OptimizeReport, symbol string) journal.RunRecord {
	rec := journal.RunRecord{
		RunID:         r.RunID,
		Kind:          "optimize",
		Created:       time.Now().UTC(),
		Symbol:        market.NormalizeSymbol(symbol),
		DataFile:      r.DataFile,
		Algorithm:     r.Algorithm,
		Mode:          r.Mode,
		Seed:          int64(r.Seed),
		Trials:        r.Trials,
		Years:         r.Years,
		DrawdownLimit: r.DrawdownLimitPct,
		FeasibleFound: r.FeasibleFound,
	}
	if sel := r.SelectedResult; sel != nil {
		params, _ := json.Marshal(sel.Params)
		rec.BestScore = sel.Score
		rec.BestParams = string(params)
	}
	return rec
}
