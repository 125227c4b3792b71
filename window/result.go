package window

import (
	"math"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/pkg/stats"
	"github.com/i-zrhe2016/amazing-3.1/sim"
)

// emptyScore stands in for averages and minima over zero windows.
const emptyScore = -1e12

// YearResult is the outcome of one window.
type YearResult struct {
	YearIdx          int        `json:"year_idx"`
	StartUTC         time.Time  `json:"start_utc"`
	EndUTC           time.Time  `json:"end_utc"`
	Bars             int        `json:"bars"`
	BarsRun          int        `json:"bars_run"`
	// NetProfit is final balance minus the starting balance. After a
	// blow-up the balance is the equity at the blow-up bar, so the loss
	// shows here rather than a zero.
	NetProfit        float64    `json:"net_profit"`
	FinalBalance     float64    `json:"final_balance"`
	ReturnPct        float64    `json:"return_pct"`
	MaxDrawdownPct   float64    `json:"max_drawdown_pct"`
	MinFreeMargin    float64    `json:"min_free_margin"`
	Blowup           bool       `json:"blowup"`
	BlowupTimeUTC    *time.Time `json:"blowup_time_utc"`
	DrawdownLimitHit bool       `json:"drawdown_limit_hit"`
	Trades           int        `json:"trades"`
	WinRate          float64    `json:"win_rate"`
	ProfitFactor     float64    `json:"profit_factor"`
}

// Failed reports whether the window ended in a blow-up or a drawdown stop.
func (y YearResult) Failed() bool { return y.Blowup || y.DrawdownLimitHit }

func yearResult(w Window, r sim.Result) YearResult {
	s := r.Summary
	y := YearResult{
		YearIdx:          w.Index,
		StartUTC:         w.StartTime(),
		EndUTC:           w.EndTime(),
		Bars:             s.Bars,
		BarsRun:          s.BarsRun,
		NetProfit:        s.NetProfit,
		FinalBalance:     s.FinalBalance,
		ReturnPct:        s.ReturnPct,
		MaxDrawdownPct:   s.MaxDrawdownPct,
		MinFreeMargin:    s.MinFreeMargin,
		DrawdownLimitHit: r.DrawdownLimitHit,
		Trades:           s.Trades,
		WinRate:          s.WinRate,
		ProfitFactor:     s.ProfitFactor,
	}
	if r.Blowup != nil {
		y.Blowup = true
		at := time.UnixMilli(r.Blowup.Timestamp).UTC()
		y.BlowupTimeUTC = &at
	}
	return y
}

// Limits are the thresholds an Aggregate is measured against.
type Limits struct {
	Windows          int     // windows expected; years_ran below it means early stop
	DrawdownLimitPct float64 // 0 disables the drawdown constraint
	TargetReturnPct  float64 // 0 disables pass_target_years
}

// Aggregate folds the windows of one parameter set.
type Aggregate struct {
	SumNetProfit            float64 `json:"sum_net_profit"`
	AvgNetProfit            float64 `json:"avg_net_profit"`
	MinYearNetProfit        float64 `json:"min_year_net_profit"`
	MinYearReturnPct        float64 `json:"min_year_return_pct"`
	WorstYearMaxDrawdownPct float64 `json:"worst_year_max_drawdown_pct"`
	BlowupYears             int     `json:"blowup_years"`
	DrawdownLimitHitYears   int     `json:"drawdown_limit_hit_years"`
	PassTargetYears         int     `json:"pass_target_years"`
	YearsRan                int     `json:"years_ran"`
	Windows                 int     `json:"windows"`
	MinFreeMargin           float64 `json:"min_free_margin"`
	Trades                  int     `json:"trades"`
	DrawdownLimitPct        float64 `json:"drawdown_limit_pct"`
	TargetReturnPct         float64 `json:"target_return_pct"`
}

// Missing is the number of windows skipped after an early stop.
func (a Aggregate) Missing() int { return max(0, a.Windows-a.YearsRan) }

// Summarize computes the aggregate of years. Averages and minima of an
// empty slice are -1e12 so that such a set always ranks last.
func Summarize(years []YearResult, lim Limits) Aggregate {
	nets := stats.Map(years, func(y YearResult) float64 { return y.NetProfit })
	rets := stats.Map(years, func(y YearResult) float64 { return y.ReturnPct })

	blown := func(y YearResult) bool { return y.Blowup }
	ddHit := func(y YearResult) bool { return y.DrawdownLimitHit }

	a := Aggregate{
		SumNetProfit:          stats.Sum(nets),
		AvgNetProfit:          emptyScore,
		MinYearNetProfit:      emptyScore,
		MinYearReturnPct:      emptyScore,
		BlowupYears:           stats.Count(years, blown),
		DrawdownLimitHitYears: stats.Count(years, ddHit),
		YearsRan:              len(years),
		Windows:               max(lim.Windows, len(years)),
		Trades:                stats.Sum(stats.Map(years, func(y YearResult) int { return y.Trades })),
		DrawdownLimitPct:      lim.DrawdownLimitPct,
		TargetReturnPct:       lim.TargetReturnPct,
	}
	if len(years) > 0 {
		a.AvgNetProfit = stats.Mean(nets)
		a.MinYearNetProfit, _ = stats.Min(nets)
		a.MinYearReturnPct, _ = stats.Min(rets)
	}
	if dd, ok := stats.Max(stats.Map(years, func(y YearResult) float64 { return y.MaxDrawdownPct })); ok {
		a.WorstYearMaxDrawdownPct = math.Max(0, dd)
	}

	minFree := math.Inf(1)
	for _, y := range years {
		minFree = math.Min(minFree, y.MinFreeMargin)
	}
	if !math.IsInf(minFree, 1) {
		a.MinFreeMargin = minFree
	}

	if lim.TargetReturnPct > 0 {
		a.PassTargetYears = stats.Count(years, func(y YearResult) bool {
			return !y.Failed() && y.ReturnPct >= lim.TargetReturnPct
		})
	}
	return a
}
