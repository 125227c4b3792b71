package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"run_id", "trade_id", "instrument", "side", "lots", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "reason", "comment"}
	equityHeader = []string{"run_id", "time", "balance", "equity", "margin_used", "free_margin", "margin_level"}
)

// CSVJournal writes trades and equity snapshots to two CSV files.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write(tradeHeader); err != nil {
		return nil, err
	}
	if err := ew.Write(equityHeader); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return j.trades.Write([]string{
		t.RunID,
		t.TradeID,
		t.Instrument,
		t.Side,
		f(t.Lots),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.UTC().Format(time.RFC3339),
		t.CloseTime.UTC().Format(time.RFC3339),
		f(t.RealizedPL),
		t.Reason,
		t.Comment,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return j.equity.Write([]string{
		e.RunID,
		e.Time.UTC().Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.MarginUsed),
		f(e.FreeMargin),
		f(e.MarginLevel),
	})
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
