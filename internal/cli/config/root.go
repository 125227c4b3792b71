// Package config holds the state shared by every command: the persistent
// flags and the run configuration they and the subcommands write into.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	appconfig "github.com/i-zrhe2016/amazing-3.1/config"
	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/market/dukascopy"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/pkg/logging"
	"github.com/i-zrhe2016/amazing-3.1/window"
)

type RootConfig struct {
	ConfigPath string
	EnvFile    string

	// Cfg is what flags bind to. Load replaces its contents with the
	// file and environment values and then re-applies the flags the user
	// set, so precedence is flags > env > file > defaults.
	Cfg *appconfig.Config
}

func NewRootConfig() *RootConfig {
	return &RootConfig{EnvFile: ".env", Cfg: appconfig.Default()}
}

// Load resolves the configuration for cmd and sets up logging.
func (rc *RootConfig) Load(cmd *cobra.Command) error {
	if err := appconfig.LoadEnv(rc.EnvFile); err != nil {
		return err
	}

	set := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) { set[f.Name] = f.Value.String() })

	loaded := appconfig.Default()
	if rc.ConfigPath != "" {
		var err error
		if loaded, err = appconfig.ReadFromFile(rc.ConfigPath); err != nil {
			return err
		}
	}
	if err := loaded.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	*rc.Cfg = *loaded

	for name, v := range set {
		if err := cmd.Flags().Set(name, v); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	if j := &rc.Cfg.Journal; j.DBPath != "" && (j.Type == "" || j.Type == "none") {
		j.Type = "sqlite"
	}
	if err := rc.SetupLogging(); err != nil {
		return err
	}
	return rc.Cfg.Validate()
}

func (rc *RootConfig) SetupLogging() error {
	return logging.Setup(rc.Cfg.Log.Level, os.Stderr, rc.Cfg.Log.NoColor)
}

// Instrument looks up the configured symbol.
func (rc *RootConfig) Instrument() (market.InstrumentMeta, error) {
	return market.Lookup(rc.Cfg.Data.Symbol)
}

// DataFile returns the history to load: the explicit file when set,
// otherwise a discovered merged file, fetching one when allowed.
func (rc *RootConfig) DataFile(ctx context.Context, meta market.InstrumentMeta, from, to time.Time) (string, error) {
	d := rc.Cfg.Data
	if d.File != "" {
		return d.File, nil
	}
	path, err := market.SelectMergedFile(d.Dir, meta, from, to)
	if err == nil {
		return path, nil
	}
	if !d.AutoFetch {
		return "", err
	}
	log.Info().Str("symbol", meta.Name).Time("from", from).Time("to", to).Msg("no merged history, fetching")
	return dukascopy.NewFetcher(d.Dir).Fetch(ctx, meta, from, to)
}

// LoadBars loads the history and keeps the bars in [from, to).
func (rc *RootConfig) LoadBars(ctx context.Context, meta market.InstrumentMeta, from, to time.Time) (*market.BarSet, []market.Bar, error) {
	path, err := rc.DataFile(ctx, meta, from, to)
	if err != nil {
		return nil, nil, err
	}
	policy, err := market.ParseGapPolicy(rc.Cfg.Data.GapPolicy)
	if err != nil {
		return nil, nil, err
	}
	bs, err := market.LoadCSV(path, market.LoadOptions{GapPolicy: policy})
	if err != nil {
		return nil, nil, err
	}
	bars := bs.Bars
	if !from.IsZero() || !to.IsZero() {
		if to.IsZero() {
			to = bs.Last().Add(time.Millisecond)
		}
		bars = bs.Between(from, to)
		if len(bars) == 0 {
			return nil, nil, errs.Data("filter", path, "no bars between %s and %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
		}
	}
	log.Info().Str("file", path).Int("bars", len(bars)).Int("gaps", len(bs.Gaps)).Msg("history loaded")
	return bs, bars, nil
}

// WindowConfig is the evaluator configuration the account and cost
// settings describe.
func (rc *RootConfig) WindowConfig(meta market.InstrumentMeta, drawdownLimit float64) window.Config {
	c := rc.Cfg
	return window.Config{
		Instrument:       meta,
		AccountCurrency:  strings.ToUpper(c.Account.Currency),
		Balance:          c.Account.Balance,
		Leverage:         c.Account.Leverage,
		QuoteRate:        c.Account.QuoteRate,
		Cost:             c.Cost,
		DrawdownLimitPct: drawdownLimit,
		TargetReturnPct:  c.Optimize.TargetReturn,
		StopOnFailure:    c.Optimize.StopOnFailure,
	}
}
