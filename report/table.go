package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/i-zrhe2016/amazing-3.1/journal"
	"github.com/i-zrhe2016/amazing-3.1/optimize"
	"github.com/i-zrhe2016/amazing-3.1/window"
)

var num = message.NewPrinter(language.English)

// Money formats an account amount with thousands separators.
func Money(v float64) string { return num.Sprintf("%.2f", v) }

func pct(v float64) string { return num.Sprintf("%.2f%%", v) }

func day(t time.Time) string { return t.UTC().Format("2006-01-02") }

func newTable(w io.Writer, heading string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if heading != "" {
		t.SetTitle(heading)
	}
	t.SetStyle(table.StyleRounded)
	return t
}

// label title-cases a row label. A Caser keeps state, so each call
// gets its own.
func label(s string) string { return cases.Title(language.English).String(s) }

// kv renders label/value pairs as a two-column table.
func kv(w io.Writer, heading string, rows [][2]string) {
	t := newTable(w, heading)
	for _, r := range rows {
		t.AppendRow(table.Row{label(r[0]), r[1]})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
}

// PrintYears renders one row per window.
func PrintYears(w io.Writer, heading string, years []window.YearResult) {
	t := newTable(w, heading)
	t.AppendHeader(table.Row{"#", "Start", "End", "Net", "Return", "Max DD", "Min Free Margin", "Trades", "Status"})
	for _, y := range years {
		status := "ok"
		switch {
		case y.Blowup && y.BlowupTimeUTC != nil:
			status = "blow-up " + y.BlowupTimeUTC.UTC().Format(time.DateTime)
		case y.Blowup:
			status = "blow-up"
		case y.DrawdownLimitHit:
			status = "dd stop"
		}
		t.AppendRow(table.Row{
			y.YearIdx, day(y.StartUTC), day(y.EndUTC),
			Money(y.NetProfit), pct(y.ReturnPct), pct(y.MaxDrawdownPct),
			Money(y.MinFreeMargin), y.Trades, status,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
}

func trialRows(tr *optimize.Trial) [][2]string {
	if tr == nil {
		return [][2]string{{"result", "none"}}
	}
	a := tr.Aggregate
	return [][2]string{
		{"score", num.Sprintf("%.2f", tr.Score)},
		{"feasible", fmt.Sprint(tr.Feasible)},
		{"phase", tr.Phase},
		{"params", tr.Params.String()},
		{"total net profit", Money(a.SumNetProfit)},
		{"worst window net", Money(a.MinYearNetProfit)},
		{"worst max drawdown", pct(a.WorstYearMaxDrawdownPct)},
		{"blow-up windows", fmt.Sprint(a.BlowupYears)},
		{"windows ran", fmt.Sprintf("%d/%d", a.YearsRan, a.Windows)},
		{"pass target windows", fmt.Sprint(a.PassTargetYears)},
	}
}

// PrintOptimize renders the run summary, the selected set and its
// windows.
func PrintOptimize(w io.Writer, r OptimizeReport) {
	rows := [][2]string{
		{"run id", r.RunID},
		{"symbol", r.Symbol},
		{"algorithm", r.Algorithm},
		{"mode", r.Mode},
		{"windows", fmt.Sprintf("%d x %dy", r.Years/max(r.WindowYears, 1), max(r.WindowYears, 1))},
		{"trials", fmt.Sprintf("%d evaluated, %d skipped of %d", r.Evaluated, r.Skipped, r.Trials)},
		{"feasible", fmt.Sprint(r.FeasibleCount)},
		{"seed", fmt.Sprint(r.Seed)},
	}
	if r.Interrupted {
		rows = append(rows, [2]string{"interrupted", "yes"})
	}
	kv(w, "OPTIMIZE", rows)
	kv(w, "SELECTED", trialRows(r.SelectedResult))
	if r.SelectedResult != nil && len(r.SelectedResult.Years) > 0 {
		PrintYears(w, "SELECTED BY WINDOW", r.SelectedResult.Years)
	}
	if len(r.Holdout) > 0 {
		PrintHoldout(w, r.Holdout)
	}
}

func PrintHoldout(w io.Writer, hs []optimize.HoldoutResult) {
	t := newTable(w, "HOLDOUT")
	t.AppendHeader(table.Row{"Rank", "Search", "Holdout", "Combined", "Holdout Net", "Feasible", "Params"})
	for _, h := range hs {
		t.AppendRow(table.Row{
			h.Rank,
			num.Sprintf("%.2f", h.Search.Score),
			num.Sprintf("%.2f", h.Holdout.Score),
			num.Sprintf("%.2f", h.Combined),
			Money(h.Holdout.Aggregate.SumNetProfit),
			h.Holdout.Feasible,
			h.Search.Params.String(),
		})
	}
	t.Render()
}

// PrintTrials renders a best-first list of trials.
func PrintTrials(w io.Writer, heading string, trials []optimize.Trial) {
	t := newTable(w, heading)
	t.AppendHeader(table.Row{"Seq", "Phase", "Score", "Feasible", "Net", "Worst DD", "Blowups", "Params"})
	for _, tr := range trials {
		t.AppendRow(table.Row{
			tr.Seq, tr.Phase, num.Sprintf("%.2f", tr.Score), tr.Feasible,
			Money(tr.Aggregate.SumNetProfit), pct(tr.Aggregate.WorstYearMaxDrawdownPct),
			tr.Aggregate.BlowupYears, tr.Params.String(),
		})
	}
	t.Render()
}

// PrintBacktest renders the summary of a single backtest run.
func PrintBacktest(w io.Writer, r journal.BacktestRun) {
	rows := [][2]string{
		{"run id", r.RunID},
		{"strategy", r.Strategy},
		{"instrument", r.Instrument},
		{"dataset", r.Dataset},
		{"start", r.Start.UTC().Format(time.RFC3339)},
		{"end", r.End.UTC().Format(time.RFC3339)},
		{"trades", fmt.Sprintf("%d (%d won, %d lost)", r.Trades, r.Wins, r.Losses)},
		{"win rate", pct(r.WinRate * 100)},
		{"start balance", Money(r.StartBalance)},
		{"end balance", Money(r.EndBalance)},
		{"net p/l", Money(r.NetPL)},
		{"return", pct(r.ReturnPct)},
		{"max drawdown", pct(r.MaxDDPct)},
		{"min free margin", Money(r.MinFreeMargin)},
	}
	if r.ProfitFactor > 0 {
		rows = append(rows, [2]string{"profit factor", num.Sprintf("%.2f", r.ProfitFactor)})
	}
	if r.BlowupTime != "" {
		rows = append(rows, [2]string{"blow-up", r.BlowupTime})
	}
	if r.DrawdownLimitHit {
		rows = append(rows, [2]string{"drawdown stop", "hit"})
	}
	kv(w, "BACKTEST", rows)
}

// PrintRun renders a journaled run and its best trials.
func PrintRun(w io.Writer, r journal.RunRecord, trials []journal.TrialRecord) {
	kv(w, "RUN", [][2]string{
		{"run id", r.RunID},
		{"kind", r.Kind},
		{"created", r.Created.UTC().Format(time.RFC3339)},
		{"symbol", r.Symbol},
		{"data file", r.DataFile},
		{"algorithm", r.Algorithm},
		{"mode", r.Mode},
		{"seed", fmt.Sprint(r.Seed)},
		{"trials", fmt.Sprint(r.Trials)},
		{"feasible found", fmt.Sprint(r.FeasibleFound)},
		{"best score", num.Sprintf("%.2f", r.BestScore)},
	})
	if len(trials) == 0 {
		return
	}
	t := newTable(w, "TRIALS")
	t.AppendHeader(table.Row{"Seq", "Phase", "Score", "Feasible", "Net", "Min Window", "Worst DD", "Blowups", "Ran"})
	for _, tr := range trials {
		t.AppendRow(table.Row{
			tr.Seq, tr.Phase, num.Sprintf("%.2f", tr.Score), tr.Feasible, Money(tr.SumNet),
			Money(tr.MinYearNet), pct(tr.WorstDD), tr.BlowupYears, tr.YearsRan,
		})
	}
	t.Render()
}
