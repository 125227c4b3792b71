package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/i-zrhe2016/amazing-3.1/journal"
	"github.com/i-zrhe2016/amazing-3.1/optimize"
	"github.com/i-zrhe2016/amazing-3.1/sim"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
	"github.com/i-zrhe2016/amazing-3.1/window"
)

var start = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

func years() []window.YearResult {
	blown := start.Add(400 * 24 * time.Hour)
	return []window.YearResult{
		{YearIdx: 1, StartUTC: start, EndUTC: start.Add(window.Year), NetProfit: 12345.5, FinalBalance: 22345.5, ReturnPct: 123.456, MaxDrawdownPct: 18.2, MinFreeMargin: 9000, Trades: 321},
		{YearIdx: 2, StartUTC: start.Add(window.Year), EndUTC: start.Add(2 * window.Year), NetProfit: -10000, ReturnPct: -100, MaxDrawdownPct: 100, Blowup: true, BlowupTimeUTC: &blown, Trades: 12},
	}
}

func trial(score float64, feasible bool) optimize.Trial {
	ys := years()
	return optimize.Trial{
		Seq:       1,
		Phase:     optimize.PhaseGlobal,
		Score:     score,
		Feasible:  feasible,
		Params:    strategy.Preserved(),
		Aggregate: window.Summarize(ys, window.Limits{Windows: 2}),
		Years:     ys,
	}
}

func TestNewOptimizeReport(t *testing.T) {
	t.Parallel()

	obj := optimize.Objective{Mode: optimize.ModeDrawdown, DrawdownLimitPct: 30}
	best := trial(100, true)
	top := trial(200, false)
	res := optimize.Result{Algorithm: optimize.AlgoAdaptive, Trials: 50, Evaluated: 50, BestFeasible: &best, BestAny: &top}
	m := Meta{RunID: "01RUN", Symbol: "USDCHF", Years: 10, WindowYears: 1, Seed: 7, Generated: start}

	r := NewOptimizeReport(m, obj, res, nil)
	assert.True(t, r.FeasibleFound)
	assert.Same(t, &best, r.SelectedResult)
	assert.Equal(t, "2016-01-01T00:00:00Z", r.GeneratedAtUTC)
	assert.Equal(t, "drawdown", r.Mode)
	assert.Contains(t, r.Objective, "10 windows")

	hold := []optimize.HoldoutResult{{Rank: 1, Search: top, Combined: 1}}
	r = NewOptimizeReport(m, obj, res, hold)
	require.NotNil(t, r.SelectedResult)
	assert.Equal(t, 200.0, r.SelectedResult.Score)

	res.BestFeasible = nil
	r = NewOptimizeReport(m, obj, res, nil)
	assert.False(t, r.FeasibleFound)
	assert.Same(t, &top, r.SelectedResult)
}

func TestWriteJSONRoundTrip(t *testing.T) {
	t.Parallel()

	best := trial(100, true)
	r := NewOptimizeReport(Meta{Symbol: "USDCHF", Years: 2, Generated: start},
		optimize.Objective{Mode: optimize.ModeNoBlowup},
		optimize.Result{Algorithm: optimize.AlgoRandom, BestFeasible: &best, BestAny: &best}, nil)

	path := filepath.Join(t.TempDir(), "out", "result.json")
	require.NoError(t, WriteJSON(path, r))

	var raw map[string]any
	require.NoError(t, ReadJSON(path, &raw))
	for _, k := range []string{"objective", "symbol", "drawdown_limit_pct", "years", "generated_at_utc",
		"data_file", "trials", "seed", "algorithm", "mode", "run_id", "chosen_boundaries",
		"feasible_found", "best_feasible", "best_any", "selected_result", "interrupted"} {
		assert.Contains(t, raw, k)
	}
	sel := raw["selected_result"].(map[string]any)
	assert.Contains(t, sel, "yearly_results")
	assert.Equal(t, 0.027, sel["params"].(map[string]any)["lot"])

	var back OptimizeReport
	require.NoError(t, ReadJSON(path, &back))
	assert.Equal(t, best.Params, back.SelectedResult.Params)
	assert.Equal(t, best.Aggregate, back.SelectedResult.Aggregate)
}

func TestPrintTables(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	PrintYears(&buf, "WINDOWS", years())
	out := buf.String()
	assert.Contains(t, out, "WINDOWS")
	assert.Contains(t, out, "12,345.50")
	assert.Contains(t, out, "123.46%")
	assert.Contains(t, out, "blow-up 2017-02-04")
	assert.Contains(t, out, "2016-12-31")

	buf.Reset()
	sel := trial(99.5, true)
	PrintOptimize(&buf, OptimizeReport{RunID: "01RUN", Symbol: "USDCHF", Trials: 10, Evaluated: 10, SelectedResult: &sel, Interrupted: true})
	out = buf.String()
	assert.Contains(t, out, "Run Id")
	assert.Contains(t, out, "Interrupted")
	assert.Contains(t, out, "SELECTED BY WINDOW")
	assert.Contains(t, out, "step=160")

	buf.Reset()
	PrintBacktest(&buf, journal.BacktestRun{RunID: "01BT", NetPL: 1234567.891, WinRate: 0.5, BlowupTime: "2016-03-01 10:00:00"})
	out = buf.String()
	assert.Contains(t, out, "1,234,567.89")
	assert.Contains(t, out, "50.00%")
	assert.Contains(t, out, "2016-03-01 10:00:00")
}

func TestWriteOptimizeXLSX(t *testing.T) {
	t.Parallel()

	sel := trial(99.5, true)
	other := trial(50, false)
	r := OptimizeReport{RunID: "01RUN", Symbol: "USDCHF", SelectedResult: &sel,
		Holdout: []optimize.HoldoutResult{{Rank: 1, Search: sel, Holdout: other, Combined: 72.275}}}
	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, WriteOptimizeXLSX(path, r, []optimize.Trial{sel, other}))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	assert.Equal(t, []string{SheetSummary, SheetWindows, SheetTrials, SheetHoldout}, fx.GetSheetList())

	v, err := fx.GetCellValue(SheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "01RUN", v)

	rows, err := fx.GetRows(SheetWindows)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Window", rows[0][0])
	assert.Equal(t, "2017-02-04 00:00:00", rows[2][10])

	rows, err = fx.GetRows(SheetTrials)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Contains(t, rows[0], "k_lot")

	rows, err = fx.GetRows(SheetHoldout)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestWriteBacktestXLSX(t *testing.T) {
	t.Parallel()

	res := sim.Result{
		Trades: []sim.Trade{{Ticket: 1, Side: "BUY", Lots: 0.03, OpenPrice: 0.9, ClosePrice: 0.901,
			OpenTime: start.UnixMilli(), CloseTime: start.Add(time.Hour).UnixMilli(), RealizedPL: 33.3, Reason: "basket"}},
		EquityCurve: []sim.EquityPoint{
			{Time: start.UnixMilli(), Balance: 10000, Equity: 10000, FreeMargin: 10000},
			{Time: start.Add(time.Hour).UnixMilli(), Balance: 10033.3, Equity: 10033.3, FreeMargin: 10033.3},
		},
	}
	path := filepath.Join(t.TempDir(), "bt", "trades.xlsx")
	require.NoError(t, WriteBacktestXLSX(path, res))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	trades, err := fx.GetRows(SheetTrades)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "BUY", trades[1][1])
	assert.Equal(t, "2016-01-01 01:00:00", trades[1][6])

	curve, err := fx.GetRows(SheetEquity)
	require.NoError(t, err)
	assert.Len(t, curve, 3)
}
