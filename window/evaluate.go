package window

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/sim"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

// DefaultSeed is the base cost-model seed; window i uses DefaultSeed+i.
const DefaultSeed uint64 = 20260226

type Config struct {
	Instrument      market.InstrumentMeta
	AccountCurrency string
	Balance         float64
	Leverage        int
	QuoteRate       float64

	Strategy string // strategy.ByName key; default amazing31
	Cost     sim.CostSpec
	Seed     uint64

	DrawdownLimitPct float64
	TargetReturnPct  float64
	// StopOnFailure skips the windows after the first blow-up or
	// drawdown stop. Skipped windows count as missing.
	StopOnFailure bool
}

func (c Config) Validate() error {
	if c.Instrument.Name == "" {
		return errs.Param("symbol", "is required")
	}
	if c.DrawdownLimitPct < 0 || c.DrawdownLimitPct >= 100 {
		return errs.Param("drawdown_limit", "must be in [0, 100)")
	}
	if c.TargetReturnPct < 0 {
		return errs.Param("target_return", "must not be negative")
	}
	return c.Cost.Validate()
}

func (c Config) simOptions() sim.Options {
	return sim.Options{
		Instrument:      c.Instrument,
		AccountCurrency: c.AccountCurrency,
		Balance:         c.Balance,
		Leverage:        c.Leverage,
		QuoteRate:       c.QuoteRate,
		DrawdownStopPct: c.DrawdownLimitPct,
	}
}

// Evaluator runs one parameter set over a fixed set of windows. It holds
// no per-run state and is safe for concurrent use.
type Evaluator struct {
	cfg     Config
	windows []Window
}

func NewEvaluator(cfg Config, windows []Window) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, errs.Data("split", "", "no windows to evaluate")
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}
	if _, err := sim.NewEngine(cfg.simOptions()); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg, windows: windows}, nil
}

func (e *Evaluator) Windows() []Window { return e.windows }

func (e *Evaluator) Limits() Limits {
	return Limits{
		Windows:          len(e.windows),
		DrawdownLimitPct: e.cfg.DrawdownLimitPct,
		TargetReturnPct:  e.cfg.TargetReturnPct,
	}
}

// Evaluate runs p over every window in order, each on a fresh account
// with its own cost seed.
func (e *Evaluator) Evaluate(ctx context.Context, p strategy.Params) ([]YearResult, error) {
	d, err := strategy.ByName(e.cfg.Strategy, p)
	if err != nil {
		return nil, err
	}
	out := make([]YearResult, 0, len(e.windows))
	for _, w := range e.windows {
		res, err := e.Run(ctx, w, d, sim.Options{})
		if err != nil {
			return out, err
		}
		y := yearResult(w, res)
		out = append(out, y)
		log.Trace().Int("window", w.Index).Float64("net", y.NetProfit).
			Float64("dd_pct", y.MaxDrawdownPct).Bool("blowup", y.Blowup).Msg("window done")
		if e.cfg.StopOnFailure && y.Failed() {
			break
		}
	}
	return out, nil
}

// Run simulates d over one window. Recording and journal fields of extra
// are merged into the evaluator's options.
func (e *Evaluator) Run(ctx context.Context, w Window, d strategy.Decider, extra sim.Options) (sim.Result, error) {
	opts := e.cfg.simOptions()
	opts.Cost = e.cfg.Cost.New(e.cfg.Seed + uint64(w.Index))
	opts.RecordCurve = extra.RecordCurve
	opts.RecordTrades = extra.RecordTrades
	opts.Journal = extra.Journal
	opts.RunID = extra.RunID
	opts.EquityEvery = extra.EquityEvery

	eng, err := sim.NewEngine(opts)
	if err != nil {
		return sim.Result{}, err
	}
	res, err := eng.Run(ctx, w.Bars, d)
	if err != nil {
		return res, fmt.Errorf("window %d: %w", w.Index, err)
	}
	return res, nil
}
