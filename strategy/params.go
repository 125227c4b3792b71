package strategy

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
)

type OpenMode int

const (
	OpenBar    OpenMode = 1 // at most one entry attempt per bar
	OpenSleep  OpenMode = 2 // wait SleepSeconds after the last fill on a side
	OpenAlways OpenMode = 3
)

func (m OpenMode) String() string {
	switch m {
	case OpenBar:
		return "bar"
	case OpenSleep:
		return "sleep"
	case OpenAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Params is the full extern set of the Amazing3.1 EA. Distances (FirstStep,
// Step, ...) are broker points; loss thresholds are positive account
// currency amounts and are negated when an Engine is built.
type Params struct {
	Totals      int     `json:"totals" yaml:"totals"`
	MaxSpread   float64 `json:"max_spread" yaml:"max_spread"`
	LeverageMin int     `json:"leverage_min" yaml:"leverage_min"`

	CloseBuySell       bool `json:"close_buy_sell" yaml:"close_buy_sell"`
	HomeopathyCloseAll bool `json:"homeopathy_close_all" yaml:"homeopathy_close_all"`
	Homeopathy         bool `json:"homeopathy" yaml:"homeopathy"`
	Over               bool `json:"over" yaml:"over"`
	NextTime           int  `json:"next_time" yaml:"next_time"` // pause seconds after a close-all

	Money           float64 `json:"money" yaml:"money"`
	FirstStep       int     `json:"first_step" yaml:"first_step"`
	MinDistance     int     `json:"min_distance" yaml:"min_distance"`
	TwoMinDistance  int     `json:"two_min_distance" yaml:"two_min_distance"`
	StepTrailOrders int     `json:"step_trail_orders" yaml:"step_trail_orders"`
	Step            int     `json:"step" yaml:"step"`
	TwoStep         int     `json:"two_step" yaml:"two_step"`

	OpenMode     OpenMode `json:"open_mode" yaml:"open_mode"`
	SleepSeconds int      `json:"sleep_seconds" yaml:"sleep_seconds"`

	MaxLoss         float64 `json:"max_loss" yaml:"max_loss"`
	MaxLossCloseAll float64 `json:"max_loss_close_all" yaml:"max_loss_close_all"`
	Lot             float64 `json:"lot" yaml:"lot"`
	MaxLot          float64 `json:"max_lot" yaml:"max_lot"`
	PlusLot         float64 `json:"plus_lot" yaml:"plus_lot"`
	KLot            float64 `json:"k_lot" yaml:"k_lot"`
	DigitsLot       int     `json:"digits_lot" yaml:"digits_lot"`

	CloseAll      float64 `json:"close_all" yaml:"close_all"`
	ProfitByCount bool    `json:"profit_by_count" yaml:"profit_by_count"`
	StopProfit    float64 `json:"stop_profit" yaml:"stop_profit"`
	StopLoss      float64 `json:"stop_loss" yaml:"stop_loss"`

	OnTopNotBuyFirst    float64 `json:"on_top_not_buy_first" yaml:"on_top_not_buy_first"`
	OnUnderNotSellFirst float64 `json:"on_under_not_sell_first" yaml:"on_under_not_sell_first"`
	OnTopNotBuyAdd      float64 `json:"on_top_not_buy_add" yaml:"on_top_not_buy_add"`
	OnUnderNotSellAdd   float64 `json:"on_under_not_sell_add" yaml:"on_under_not_sell_add"`

	EAStartTime    string `json:"ea_start_time" yaml:"ea_start_time"`
	EAStopTime     string `json:"ea_stop_time" yaml:"ea_stop_time"`
	LimitStartTime string `json:"limit_start_time" yaml:"limit_start_time"`
	LimitStopTime  string `json:"limit_stop_time" yaml:"limit_stop_time"`

	CheckMarginForAddOrders bool `json:"check_margin_for_add_orders" yaml:"check_margin_for_add_orders"`
}

// Defaults are the EA's extern defaults with the optimizer's fixed
// overrides (three lot digits, bar open mode).
func Defaults() Params {
	return Params{
		Totals:             50,
		MaxSpread:          32,
		LeverageMin:        100,
		CloseBuySell:       true,
		HomeopathyCloseAll: true,
		Money:              0,
		FirstStep:          30,
		MinDistance:        60,
		TwoMinDistance:     60,
		StepTrailOrders:    5,
		Step:               100,
		TwoStep:            100,
		OpenMode:           OpenBar,
		SleepSeconds:       30,
		MaxLoss:            100_000,
		MaxLossCloseAll:    50,
		Lot:                0.01,
		MaxLot:             10,
		PlusLot:            0,
		KLot:               1.3,
		DigitsLot:          3,
		CloseAll:           0.5,
		ProfitByCount:      true,
		StopProfit:         2.0,
		EAStartTime:        "00:00",
		EAStopTime:         "24:00",
		LimitStartTime:     "00:00",
		LimitStopTime:      "24:00",
	}
}

// Preserved is the hand-tuned set the search starts from and the
// backtest command runs when no parameter file is given.
func Preserved() Params {
	p := Defaults()
	p.Totals = 60
	p.MaxSpread = 40
	p.CloseBuySell = false
	p.HomeopathyCloseAll = true
	p.Homeopathy = false
	p.Money = 0
	p.FirstStep = 35
	p.MinDistance = 155
	p.TwoMinDistance = 95
	p.StepTrailOrders = 15
	p.Step = 160
	p.TwoStep = 265
	p.Lot = 0.027
	p.MaxLot = 0.51
	p.PlusLot = 0.003
	p.KLot = 1.085
	p.CloseAll = 2.74
	p.ProfitByCount = false
	p.StopProfit = 4.49
	p.MaxLoss = 91089.5
	p.MaxLossCloseAll = 49.4
	p.CheckMarginForAddOrders = false
	return p
}

func (p Params) Validate() error {
	switch {
	case p.Totals < 1:
		return errs.Param("totals", "must be at least 1")
	case p.Lot <= 0:
		return errs.Param("lot", "must be positive")
	case p.MaxLot < p.Lot:
		return errs.Param("max_lot", "must be >= lot (%v < %v)", p.MaxLot, p.Lot)
	case p.KLot <= 0:
		return errs.Param("k_lot", "must be positive")
	case p.PlusLot < 0:
		return errs.Param("plus_lot", "must not be negative")
	case p.DigitsLot < 0 || p.DigitsLot > 8:
		return errs.Param("digits_lot", "must be in [0, 8]")
	case p.Step <= 0:
		return errs.Param("step", "must be positive")
	case p.TwoStep <= 0:
		return errs.Param("two_step", "must be positive")
	case p.FirstStep < 0 || p.MinDistance < 0 || p.TwoMinDistance < 0 || p.StepTrailOrders < 0:
		return errs.Param("first_step", "distances must not be negative")
	case p.OpenMode < OpenBar || p.OpenMode > OpenAlways:
		return errs.Param("open_mode", "must be 1 (bar), 2 (sleep) or 3 (always)")
	case p.SleepSeconds < 0 || p.NextTime < 0:
		return errs.Param("sleep_seconds", "must not be negative")
	}
	for name, s := range map[string]string{
		"ea_start_time":    p.EAStartTime,
		"ea_stop_time":     p.EAStopTime,
		"limit_start_time": p.LimitStartTime,
		"limit_stop_time":  p.LimitStopTime,
	} {
		if _, err := parseClock(s); err != nil {
			return errs.Param(name, "%v", err)
		}
	}
	return nil
}

type field struct {
	get func(*Params) float64
	set func(*Params, float64)
	// Kind is "int", "float" or "bool".
	kind string
}

func intField(ptr func(*Params) *int) field {
	return field{
		get:  func(p *Params) float64 { return float64(*ptr(p)) },
		set:  func(p *Params, v float64) { *ptr(p) = int(math.Round(v)) },
		kind: "int",
	}
}

func floatField(ptr func(*Params) *float64) field {
	return field{
		get:  func(p *Params) float64 { return *ptr(p) },
		set:  func(p *Params, v float64) { *ptr(p) = v },
		kind: "float",
	}
}

func boolField(ptr func(*Params) *bool) field {
	return field{
		get: func(p *Params) float64 {
			if *ptr(p) {
				return 1
			}
			return 0
		},
		set:  func(p *Params, v float64) { *ptr(p) = v >= 0.5 },
		kind: "bool",
	}
}

var fields = map[string]field{
	"totals":                      intField(func(p *Params) *int { return &p.Totals }),
	"max_spread":                  floatField(func(p *Params) *float64 { return &p.MaxSpread }),
	"leverage_min":                intField(func(p *Params) *int { return &p.LeverageMin }),
	"close_buy_sell":              boolField(func(p *Params) *bool { return &p.CloseBuySell }),
	"homeopathy_close_all":        boolField(func(p *Params) *bool { return &p.HomeopathyCloseAll }),
	"homeopathy":                  boolField(func(p *Params) *bool { return &p.Homeopathy }),
	"over":                        boolField(func(p *Params) *bool { return &p.Over }),
	"next_time":                   intField(func(p *Params) *int { return &p.NextTime }),
	"money":                       floatField(func(p *Params) *float64 { return &p.Money }),
	"first_step":                  intField(func(p *Params) *int { return &p.FirstStep }),
	"min_distance":                intField(func(p *Params) *int { return &p.MinDistance }),
	"two_min_distance":            intField(func(p *Params) *int { return &p.TwoMinDistance }),
	"step_trail_orders":           intField(func(p *Params) *int { return &p.StepTrailOrders }),
	"step":                        intField(func(p *Params) *int { return &p.Step }),
	"two_step":                    intField(func(p *Params) *int { return &p.TwoStep }),
	"sleep_seconds":               intField(func(p *Params) *int { return &p.SleepSeconds }),
	"max_loss":                    floatField(func(p *Params) *float64 { return &p.MaxLoss }),
	"max_loss_close_all":          floatField(func(p *Params) *float64 { return &p.MaxLossCloseAll }),
	"lot":                         floatField(func(p *Params) *float64 { return &p.Lot }),
	"max_lot":                     floatField(func(p *Params) *float64 { return &p.MaxLot }),
	"plus_lot":                    floatField(func(p *Params) *float64 { return &p.PlusLot }),
	"k_lot":                       floatField(func(p *Params) *float64 { return &p.KLot }),
	"digits_lot":                  intField(func(p *Params) *int { return &p.DigitsLot }),
	"close_all":                   floatField(func(p *Params) *float64 { return &p.CloseAll }),
	"profit_by_count":             boolField(func(p *Params) *bool { return &p.ProfitByCount }),
	"stop_profit":                 floatField(func(p *Params) *float64 { return &p.StopProfit }),
	"stop_loss":                   floatField(func(p *Params) *float64 { return &p.StopLoss }),
	"on_top_not_buy_add":          floatField(func(p *Params) *float64 { return &p.OnTopNotBuyAdd }),
	"on_under_not_sell_add":       floatField(func(p *Params) *float64 { return &p.OnUnderNotSellAdd }),
	"check_margin_for_add_orders": boolField(func(p *Params) *bool { return &p.CheckMarginForAddOrders }),
}

// Names lists every parameter reachable through Value/SetValue.
func Names() []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Kind reports "int", "float" or "bool" for a named parameter.
func Kind(name string) (string, bool) {
	f, ok := fields[name]
	return f.kind, ok
}

// Value returns a named parameter as a float; bools are 0 or 1.
func (p Params) Value(name string) (float64, error) {
	f, ok := fields[name]
	if !ok {
		return 0, errs.Param(name, "unknown parameter")
	}
	return f.get(&p), nil
}

// SetValue assigns a named parameter; ints are rounded, bools are v >= 0.5.
func (p *Params) SetValue(name string, v float64) error {
	f, ok := fields[name]
	if !ok {
		return errs.Param(name, "unknown parameter")
	}
	f.set(p, v)
	return nil
}

// Fingerprint is a stable text key of the numeric parameter values.
func (p Params) Fingerprint() string {
	var b strings.Builder
	for i, name := range Names() {
		if i > 0 {
			b.WriteByte('|')
		}
		v, _ := p.Value(name)
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(v, 'g', 10, 64))
	}
	return b.String()
}

func (p Params) String() string {
	return fmt.Sprintf("step=%d lot=%.3f k_lot=%.3f max_lot=%.2f totals=%d", p.Step, p.Lot, p.KLot, p.MaxLot, p.Totals)
}

// parseClock turns "HH:MM" or "HH:MM:SS" into seconds of day. "24:00"
// means end of day (23:59:59). Components are clamped like MT4 does.
func parseClock(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "24:00" {
		s = "23:59:59"
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("bad time %q, want HH:MM[:SS]", s)
	}
	lim := []int{23, 59, 59}
	out := 0
	for i, mult := range []int{3600, 60, 1} {
		if i >= len(parts) {
			break
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, fmt.Errorf("bad time %q: %w", s, err)
		}
		n = max(0, min(n, lim[i]))
		out += n * mult
	}
	return out, nil
}
