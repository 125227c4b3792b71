package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/i-zrhe2016/amazing-3.1/optimize"
	"github.com/i-zrhe2016/amazing-3.1/sim"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
	"github.com/i-zrhe2016/amazing-3.1/window"
)

// Sheet names of the workbooks.
const (
	SheetSummary = "Summary"
	SheetWindows = "Windows"
	SheetTrials  = "Top Trials"
	SheetHoldout = "Holdout"
	SheetTrades  = "Trades"
	SheetEquity  = "Equity"
)

type styles struct {
	header  int
	money   int
	percent int
}

func newStyles(fx *excelize.File) (styles, error) {
	var s styles
	var err error
	border := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}
	s.header, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return s, err
	}
	s.money, err = fx.NewStyle(&excelize.Style{NumFmt: 4, Border: border}) // #,##0.00
	if err != nil {
		return s, err
	}
	fmtPct := "0.00\"%\""
	s.percent, err = fx.NewStyle(&excelize.Style{CustomNumFmt: &fmtPct, Border: border})
	return s, err
}

// sheet writes a header and rows to name and styles the given money and
// percent columns (1-based).
type sheet struct {
	fx      *excelize.File
	name    string
	st      styles
	money   []int
	percent []int
}

func (s sheet) write(header []any, rows [][]any) error {
	if err := s.fx.SetSheetRow(s.name, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := s.fx.SetCellStyle(s.name, "A1", last, s.st.header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := s.fx.SetSheetRow(s.name, cell, &r); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		for _, c := range s.money {
			if err := s.styleColumn(c, len(rows), s.st.money); err != nil {
				return err
			}
		}
		for _, c := range s.percent {
			if err := s.styleColumn(c, len(rows), s.st.percent); err != nil {
				return err
			}
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := s.fx.SetColWidth(s.name, "A", lastCol, 14); err != nil {
		return err
	}
	return s.fx.SetPanes(s.name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (s sheet) styleColumn(col, n, style int) error {
	from, _ := excelize.CoordinatesToCellName(col, 2)
	to, _ := excelize.CoordinatesToCellName(col, n+1)
	return s.fx.SetCellStyle(s.name, from, to, style)
}

func create(path string, names ...string) (*excelize.File, styles, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, styles{}, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	fx := excelize.NewFile()
	if err := fx.SetSheetName(fx.GetSheetName(0), names[0]); err != nil {
		return nil, styles{}, err
	}
	for _, n := range names[1:] {
		if _, err := fx.NewSheet(n); err != nil {
			return nil, styles{}, err
		}
	}
	st, err := newStyles(fx)
	if err != nil {
		return nil, styles{}, err
	}
	return fx, st, nil
}

// WriteOptimizeXLSX writes the run summary, the selected set's windows,
// the top trials with every parameter and the holdout ranking.
func WriteOptimizeXLSX(path string, r OptimizeReport, top []optimize.Trial) error {
	fx, st, err := create(path, SheetSummary, SheetWindows, SheetTrials, SheetHoldout)
	if err != nil {
		return err
	}
	defer fx.Close()

	summary := [][]any{
		{"Run ID", r.RunID},
		{"Objective", r.Objective},
		{"Symbol", r.Symbol},
		{"Algorithm", r.Algorithm},
		{"Mode", r.Mode},
		{"Trials", r.Trials},
		{"Evaluated", r.Evaluated},
		{"Feasible", r.FeasibleCount},
		{"Seed", r.Seed},
		{"Data File", r.DataFile},
		{"Generated (UTC)", r.GeneratedAtUTC},
		{"Interrupted", r.Interrupted},
	}
	if sel := r.SelectedResult; sel != nil {
		summary = append(summary,
			[]any{"Selected Score", sel.Score},
			[]any{"Selected Net Profit", sel.Aggregate.SumNetProfit},
			[]any{"Selected Worst DD %", sel.Aggregate.WorstYearMaxDrawdownPct},
		)
	}
	if err := (sheet{fx: fx, name: SheetSummary, st: st}).write([]any{"Field", "Value"}, summary); err != nil {
		return err
	}

	var years []window.YearResult
	if r.SelectedResult != nil {
		years = r.SelectedResult.Years
	}
	if err := writeWindows(fx, st, years); err != nil {
		return err
	}
	if err := writeTrials(fx, st, top); err != nil {
		return err
	}

	var hrows [][]any
	for _, h := range r.Holdout {
		hrows = append(hrows, []any{h.Rank, h.Search.Score, h.Holdout.Score, h.Combined,
			h.Holdout.Aggregate.SumNetProfit, h.Holdout.Feasible, h.Search.Params.String()})
	}
	hs := sheet{fx: fx, name: SheetHoldout, st: st, money: []int{5}}
	if err := hs.write([]any{"Rank", "Search Score", "Holdout Score", "Combined", "Holdout Net", "Feasible", "Params"}, hrows); err != nil {
		return err
	}
	return fx.SaveAs(path)
}

func writeWindows(fx *excelize.File, st styles, years []window.YearResult) error {
	rows := make([][]any, 0, len(years))
	for _, y := range years {
		blowup := ""
		if y.BlowupTimeUTC != nil {
			blowup = y.BlowupTimeUTC.UTC().Format(time.DateTime)
		}
		rows = append(rows, []any{y.YearIdx, day(y.StartUTC), day(y.EndUTC), y.NetProfit, y.FinalBalance,
			y.ReturnPct, y.MaxDrawdownPct, y.MinFreeMargin, y.Trades, y.Blowup, blowup, y.DrawdownLimitHit})
	}
	s := sheet{fx: fx, name: SheetWindows, st: st, money: []int{4, 5, 8}, percent: []int{6, 7}}
	return s.write([]any{"Window", "Start", "End", "Net Profit", "Final Balance", "Return %", "Max DD %",
		"Min Free Margin", "Trades", "Blowup", "Blowup Time", "DD Stop"}, rows)
}

func writeTrials(fx *excelize.File, st styles, trials []optimize.Trial) error {
	names := strategy.Names()
	header := []any{"Seq", "Phase", "Score", "Feasible", "Net Profit", "Worst Window", "Worst DD %", "Blowups", "Windows Ran"}
	for _, n := range names {
		header = append(header, n)
	}
	rows := make([][]any, 0, len(trials))
	for _, t := range trials {
		a := t.Aggregate
		row := []any{t.Seq, t.Phase, t.Score, t.Feasible, a.SumNetProfit, a.MinYearNetProfit,
			a.WorstYearMaxDrawdownPct, a.BlowupYears, a.YearsRan}
		for _, n := range names {
			v, _ := t.Params.Value(n)
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	s := sheet{fx: fx, name: SheetTrials, st: st, money: []int{5, 6}, percent: []int{7}}
	return s.write(header, rows)
}

// WriteBacktestXLSX writes a backtest's closed trades and equity curve.
func WriteBacktestXLSX(path string, res sim.Result) error {
	fx, st, err := create(path, SheetTrades, SheetEquity)
	if err != nil {
		return err
	}
	defer fx.Close()

	ms := func(t int64) string { return time.UnixMilli(t).UTC().Format(time.DateTime) }

	trades := make([][]any, 0, len(res.Trades))
	for _, t := range res.Trades {
		trades = append(trades, []any{t.Ticket, t.Side, t.Lots, t.OpenPrice, t.ClosePrice,
			ms(t.OpenTime), ms(t.CloseTime), t.RealizedPL, t.Reason, t.Comment})
	}
	ts := sheet{fx: fx, name: SheetTrades, st: st, money: []int{8}}
	if err := ts.write([]any{"Ticket", "Side", "Lots", "Open Price", "Close Price", "Open Time",
		"Close Time", "Realized P/L", "Reason", "Comment"}, trades); err != nil {
		return err
	}

	curve := make([][]any, 0, len(res.EquityCurve))
	for _, p := range res.EquityCurve {
		curve = append(curve, []any{ms(p.Time), p.Balance, p.Equity, p.FreeMargin})
	}
	es := sheet{fx: fx, name: SheetEquity, st: st, money: []int{2, 3, 4}}
	if err := es.write([]any{"Time", "Balance", "Equity", "Free Margin"}, curve); err != nil {
		return err
	}
	return fx.SaveAs(path)
}
