// Package journal persists closed trades, equity snapshots and optimizer
// trials so a run can be inspected after the fact.
package journal

import "time"

// TradeRecord is one closed position.
type TradeRecord struct {
	RunID      string
	TradeID    string
	Instrument string
	Side       string // BUY or SELL
	Lots       float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
	Comment    string
}

type EquitySnapshot struct {
	RunID       string
	Time        time.Time
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

// Journal receives simulator events. Implementations need not be safe for
// concurrent use unless they say so.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// RunRecord describes one optimize or backtest invocation.
type RunRecord struct {
	RunID         string
	Kind          string // optimize or backtest
	Created       time.Time
	Symbol        string
	DataFile      string
	Algorithm     string
	Mode          string
	Seed          int64
	Trials        int
	Years         int
	DrawdownLimit float64
	FeasibleFound bool
	BestScore     float64
	BestParams    string // JSON
}

// TrialRecord is one evaluated candidate of a search.
type TrialRecord struct {
	RunID       string
	Seq         int
	Phase       string
	Score       float64
	Feasible    bool
	Fingerprint string
	SumNet      float64
	MinYearNet  float64
	WorstDD     float64
	BlowupYears int
	YearsRan    int
	Params      string // JSON
}

type discard struct{}

func (discard) RecordTrade(TradeRecord) error     { return nil }
func (discard) RecordEquity(EquitySnapshot) error { return nil }
func (discard) Close() error                      { return nil }

// Discard drops every record.
var Discard Journal = discard{}
