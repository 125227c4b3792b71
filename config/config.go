package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/optimize"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/sim"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

// Config is everything a backtest or optimize run reads from file. Flags
// override it field by field.
type Config struct {
	Account  AccountConfig   `json:"account" yaml:"account"`
	Data     DataConfig      `json:"data" yaml:"data"`
	Cost     sim.CostSpec    `json:"cost" yaml:"cost"`
	Optimize OptimizeConfig  `json:"optimize" yaml:"optimize"`
	Params   strategy.Params `json:"params" yaml:"params"`
	Journal  JournalConfig   `json:"journal" yaml:"journal"`
	Metrics  MetricsConfig   `json:"metrics" yaml:"metrics"`
	Log      LogConfig       `json:"log" yaml:"log"`
}

type AccountConfig struct {
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
	Leverage int     `json:"leverage" yaml:"leverage"`
	// QuoteRate converts the quote currency of a cross into the account
	// currency.
	QuoteRate float64 `json:"quote_rate,omitempty" yaml:"quote_rate,omitempty"`
}

type DataConfig struct {
	Symbol    string `json:"symbol" yaml:"symbol"`
	Dir       string `json:"dir" yaml:"dir"`                     // merged-file cache
	File      string `json:"file,omitempty" yaml:"file,omitempty"` // bypasses discovery
	AutoFetch bool   `json:"auto_fetch" yaml:"auto_fetch"`
	GapPolicy string `json:"gap_policy" yaml:"gap_policy"`
}

type OptimizeConfig struct {
	Algorithm     string  `json:"algorithm" yaml:"algorithm"`
	Mode          string  `json:"mode" yaml:"mode"`
	Trials        int     `json:"trials" yaml:"trials"`
	Seed          uint64  `json:"seed" yaml:"seed"`
	Years         int     `json:"years" yaml:"years"`
	WindowYears   int     `json:"window_years" yaml:"window_years"`
	DrawdownLimit float64 `json:"drawdown_limit" yaml:"drawdown_limit"`
	TargetReturn  float64 `json:"target_return,omitempty" yaml:"target_return,omitempty"`
	Workers       int     `json:"workers" yaml:"workers"`
	Batch         int     `json:"batch" yaml:"batch"`
	StopOnFailure bool    `json:"stop_on_failure" yaml:"stop_on_failure"`

	// Space names the searched dimensions; empty means step, lot, k_lot.
	Space  []string                  `json:"space,omitempty" yaml:"space,omitempty"`
	Bounds map[string]optimize.Range `json:"bounds,omitempty" yaml:"bounds,omitempty"`

	// HoldoutYears > 0 re-evaluates the top HoldoutTop sets on windows of
	// that many years.
	HoldoutYears int `json:"holdout_years,omitempty" yaml:"holdout_years,omitempty"`
	HoldoutTop   int `json:"holdout_top,omitempty" yaml:"holdout_top,omitempty"`

	Out  string `json:"out,omitempty" yaml:"out,omitempty"`
	XLSX string `json:"xlsx,omitempty" yaml:"xlsx,omitempty"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // e.g. ":9102"; empty disables
}

type LogConfig struct {
	Level   string `json:"level" yaml:"level"`
	NoColor bool   `json:"no_color,omitempty" yaml:"no_color,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to
// JSON) on top of Default and validates it.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFromFile is LoadFromFile without validation, for callers that
// apply further overrides before validating.
func ReadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid. Every failure is a
// ParameterError.
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return errs.Param("account.currency", "is required")
	}
	if c.Account.Balance <= 0 {
		return errs.Param("account.balance", "must be positive")
	}
	if c.Account.Leverage < 1 {
		return errs.Param("account.leverage", "must be at least 1")
	}
	if c.Data.Symbol == "" {
		return errs.Param("data.symbol", "is required")
	}
	meta, err := market.Lookup(c.Data.Symbol)
	if err != nil {
		return errs.Param("data.symbol", "%v", err)
	}
	if _, err := market.QuoteToAccount(meta, c.Account.Currency, 1, c.Account.QuoteRate); err != nil {
		return errs.Param("account.quote_rate", "%v", err)
	}
	if _, err := market.ParseGapPolicy(c.Data.GapPolicy); err != nil {
		return err
	}
	if err := c.Cost.Validate(); err != nil {
		return err
	}
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if err := c.validateOptimize(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return errs.Param("journal", "trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return errs.Param("journal.db_path", "required for SQLite type")
		}
	default:
		return errs.Param("journal.type", "must be 'none', 'csv' or 'sqlite'")
	}
	return nil
}

func (c *Config) validateOptimize() error {
	o := c.Optimize
	switch o.Algorithm {
	case optimize.AlgoRandom, optimize.AlgoAdaptive:
	default:
		return errs.Param("optimize.algorithm", "must be %q or %q", optimize.AlgoRandom, optimize.AlgoAdaptive)
	}
	mode, err := optimize.ParseMode(o.Mode)
	if err != nil {
		return err
	}
	obj := optimize.Objective{Mode: mode, DrawdownLimitPct: o.DrawdownLimit, TargetReturnPct: o.TargetReturn}
	if err := obj.Validate(); err != nil {
		return err
	}
	switch {
	case o.Trials < 1:
		return errs.Param("optimize.trials", "must be at least 1")
	case o.Years < 1:
		return errs.Param("optimize.years", "must be at least 1")
	case o.WindowYears < 1:
		return errs.Param("optimize.window_years", "must be at least 1")
	case o.HoldoutYears < 0 || o.HoldoutTop < 0:
		return errs.Param("optimize.holdout_years", "must not be negative")
	}
	if _, err := c.Space(); err != nil {
		return err
	}
	return nil
}

// Space resolves Optimize.Space against the full EA space.
func (c *Config) Space() (optimize.Space, error) {
	if len(c.Optimize.Space) == 0 {
		return optimize.DefaultSpace(), nil
	}
	if len(c.Optimize.Space) == 1 && c.Optimize.Space[0] == "all" {
		return optimize.FullSpace(), nil
	}
	return optimize.FullSpace().Select(c.Optimize.Space)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Currency: "USD",
			Balance:  sim.DefaultBalance,
			Leverage: sim.DefaultLeverage,
		},
		Data: DataConfig{
			Symbol:    "USDCHF",
			Dir:       "download",
			AutoFetch: true,
			GapPolicy: string(market.GapReport),
		},
		Cost: sim.CostSpec{Model: "dynamic"},
		Optimize: OptimizeConfig{
			Algorithm:     optimize.AlgoAdaptive,
			Mode:          string(optimize.ModeDrawdown),
			Trials:        120,
			Seed:          20260226,
			Years:         10,
			WindowYears:   1,
			DrawdownLimit: 80,
			Batch:         optimize.DefaultBatch,
			StopOnFailure: true,
			HoldoutTop:    5,
		},
		Params:  strategy.Preserved(),
		Journal: JournalConfig{Type: "none"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadEnv reads .env style files into the process environment. Missing
// files are skipped; variables already set win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AMAZING_"

// ApplyEnv overrides fields from AMAZING_* variables read through
// getenv (os.Getenv in production).
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	var firstErr error
	parse := func(key string, set func(string) error) {
		v := getenv(EnvPrefix + key)
		if v == "" || firstErr != nil {
			return
		}
		if err := set(v); err != nil {
			firstErr = errs.Param(strings.ToLower(key), "bad %s%s=%q: %v", EnvPrefix, key, v, err)
		}
	}

	str("SYMBOL", &c.Data.Symbol)
	str("DATA_DIR", &c.Data.Dir)
	str("DATA_FILE", &c.Data.File)
	str("ALGORITHM", &c.Optimize.Algorithm)
	str("MODE", &c.Optimize.Mode)
	str("OUT", &c.Optimize.Out)
	str("DB", &c.Journal.DBPath)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	if c.Journal.DBPath != "" && (c.Journal.Type == "" || c.Journal.Type == "none") {
		c.Journal.Type = "sqlite"
	}

	parse("TRIALS", func(v string) (err error) { c.Optimize.Trials, err = strconv.Atoi(v); return })
	parse("YEARS", func(v string) (err error) { c.Optimize.Years, err = strconv.Atoi(v); return })
	parse("WORKERS", func(v string) (err error) { c.Optimize.Workers, err = strconv.Atoi(v); return })
	parse("SEED", func(v string) (err error) { c.Optimize.Seed, err = strconv.ParseUint(v, 10, 64); return })
	parse("DRAWDOWN_LIMIT", func(v string) (err error) {
		c.Optimize.DrawdownLimit, err = strconv.ParseFloat(v, 64)
		return
	})
	parse("BALANCE", func(v string) (err error) { c.Account.Balance, err = strconv.ParseFloat(v, 64); return })
	parse("AUTO_FETCH", func(v string) (err error) { c.Data.AutoFetch, err = strconv.ParseBool(v); return })
	return firstErr
}
