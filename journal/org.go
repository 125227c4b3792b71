package journal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/pkg/id"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block with all facts
// in a PROPERTIES drawer for easy search.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** %s %s %.3f (%s)", t.Side, t.Instrument, t.Lots, id.Short(t.TradeID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":RUN_ID: %s\n", t.RunID))
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.TradeID))
	b.WriteString(fmt.Sprintf(":INSTRUMENT: %s\n", t.Instrument))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", t.Side))
	b.WriteString(fmt.Sprintf(":LOTS: %.3f\n", t.Lots))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.5f\n", t.EntryPrice))
	b.WriteString(fmt.Sprintf(":EXIT_PRICE: %.5f\n", t.ExitPrice))
	b.WriteString(fmt.Sprintf(":OPEN_TIME: %s\n", t.OpenTime.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":CLOSE_TIME: %s\n", t.CloseTime.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":REALIZED_PL: %.2f\n", t.RealizedPL))
	b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	if t.Comment != "" {
		b.WriteString(fmt.Sprintf(":COMMENT: %s\n", t.Comment))
	}
	b.WriteString(":END:\n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// BacktestRun is the summary block written by `amazing backtest --org`.
type BacktestRun struct {
	RunID      string
	Created    time.Time
	Instrument string
	Strategy   string
	Dataset    string
	Timeframe  string
	Params     string

	Start time.Time
	End   time.Time

	Trades int
	Wins   int
	Losses int

	StartBalance  float64
	EndBalance    float64
	NetPL         float64
	ReturnPct     float64
	WinRate       float64
	ProfitFactor  float64
	MaxDDPct      float64
	MinFreeMargin float64

	BlowupTime       string
	DrawdownLimitHit bool

	Notes []string
}

var backtestOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var backtestOrg = template.Must(template.New("backtest").Funcs(backtestOrgFuncs).Parse(BacktestOrgTemplate))

// RenderOrg writes the Org summary of a backtest to w.
func (v *BacktestRun) RenderOrg(w io.Writer) error {
	return backtestOrg.Execute(w, v)
}

// WriteOrg renders the summary into path.
func (v *BacktestRun) WriteOrg(path string) error {
	var b strings.Builder
	if err := v.RenderOrg(&b); err != nil {
		return fmt.Errorf("render org: %w", err)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

const BacktestOrgTemplate = `* BACKTEST: {{.Strategy}} {{.Instrument}} {{if .Timeframe}}{{.Timeframe}}{{else}}M5{{end}}
:PROPERTIES:
:RUN_ID:      {{.RunID}}
:STRATEGY:    {{.Strategy}}
:INSTRUMENT:  {{.Instrument}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:MIN_FREE_MARGIN: {{printf "%.2f" .MinFreeMargin}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" (mul100 .WinRate)}}
:PROFIT_FAC:  {{printf "%.2f" .ProfitFactor}}
:BLOWUP:      {{if .BlowupTime}}{{.BlowupTime}}{{else}}-{{end}}
:DD_STOP:     {{.DrawdownLimitHit}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Parameters
#+begin_src json
{{.Params}}
#+end_src

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDDPct}}%*
- Win Rate:         *{{printf "%.2f" (mul100 .WinRate)}}%*
- Profit Factor:    *{{printf "%.2f" .ProfitFactor}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
