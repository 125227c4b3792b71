package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	for _, table := range []string{"trades", "equity", "runs", "trials"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteRecordTrade(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	open := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	closeT := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)

	rec := TradeRecord{
		RunID:      "R1",
		TradeID:    "7",
		Instrument: "USD_CHF",
		Side:       "SELL",
		Lots:       0.032,
		EntryPrice: 0.91234,
		ExitPrice:  0.91001,
		OpenTime:   open,
		CloseTime:  closeT,
		RealizedPL: 8.19,
		Reason:     "stop_profit_sell",
		Comment:    "NN",
	}

	require.NoError(t, j.RecordTrade(rec))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		tradeID    string
		side       string
		lots       float64
		entry      float64
		openTime   time.Time
		closeTime  time.Time
		realizedPL float64
		reason     string
	)

	err = db.QueryRow(`
        SELECT trade_id, side, lots, entry_price, open_time, close_time, realized_pl, reason
        FROM trades WHERE run_id = 'R1'`).Scan(
		&tradeID, &side, &lots, &entry, &openTime, &closeTime, &realizedPL, &reason,
	)
	require.NoError(t, err)

	assert.Equal(t, rec.TradeID, tradeID)
	assert.Equal(t, "SELL", side)
	assert.InDelta(t, rec.Lots, lots, 1e-9)
	assert.InDelta(t, rec.EntryPrice, entry, 1e-9)
	assert.True(t, openTime.Equal(rec.OpenTime))
	assert.True(t, closeTime.Equal(rec.CloseTime))
	assert.InDelta(t, rec.RealizedPL, realizedPL, 1e-9)
	assert.Equal(t, rec.Reason, reason)
}

func TestSQLiteSameTicketInTwoRuns(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, run := range []string{"A", "B"} {
		require.NoError(t, j.RecordTrade(TradeRecord{RunID: run, TradeID: "1", Instrument: "EUR_USD", Side: "BUY", OpenTime: now, CloseTime: now}))
	}

	a, err := j.ListTradesByRun("A")
	require.NoError(t, err)
	b, err := j.ListTradesByRun("B")
	require.NoError(t, err)
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}

func TestSQLiteEquityBatchesAcrossCommits(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	start := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	n := batchSize + 10
	for i := 0; i < n; i++ {
		require.NoError(t, j.RecordEquity(EquitySnapshot{
			RunID:   "R",
			Time:    start.Add(time.Duration(i) * 5 * time.Minute),
			Balance: 10_000,
			Equity:  10_000 + float64(i),
		}))
	}

	got, err := j.ListEquityByRun("R")
	require.NoError(t, err)
	require.Len(t, got, n)
	assert.InDelta(t, 10_000.0, got[0].Equity, 1e-9)
	assert.InDelta(t, 10_000.0+float64(n-1), got[n-1].Equity, 1e-9)
	assert.True(t, got[1].Time.Equal(start.Add(5*time.Minute)))
}

func TestSQLiteRunsAndTrials(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	created := time.Date(2026, 2, 26, 8, 0, 0, 0, time.UTC)
	run := RunRecord{
		RunID:         "RUN1",
		Kind:          "optimize",
		Created:       created,
		Symbol:        "USDCHF",
		DataFile:      "download/usdchf.csv",
		Algorithm:     "adaptive",
		Mode:          "drawdown",
		Seed:          20260226,
		Trials:        40,
		Years:         10,
		DrawdownLimit: 30,
	}
	require.NoError(t, j.RecordRun(run))

	run.FeasibleFound = true
	run.BestScore = 1234.5
	run.BestParams = `{"step":160}`
	require.NoError(t, j.RecordRun(run))

	got, err := j.GetRun("RUN1")
	require.NoError(t, err)
	assert.True(t, got.FeasibleFound)
	assert.InDelta(t, 1234.5, got.BestScore, 1e-9)
	assert.Equal(t, `{"step":160}`, got.BestParams)
	assert.Equal(t, int64(20260226), got.Seed)
	assert.True(t, got.Created.Equal(created))

	_, err = j.GetRun("nope")
	assert.ErrorContains(t, err, "not found")

	trials := []TrialRecord{
		{RunID: "RUN1", Seq: 0, Phase: "global", Score: -1e9, Feasible: false, Params: "{}"},
		{RunID: "RUN1", Seq: 1, Phase: "global", Score: 500, Feasible: true, Params: "{}"},
		{RunID: "RUN1", Seq: 2, Phase: "local", Score: 900, Feasible: true, Params: "{}"},
		{RunID: "RUN1", Seq: 3, Phase: "local", Score: 100, Feasible: true, Params: "{}"},
	}
	for _, tr := range trials {
		require.NoError(t, j.RecordTrial(tr))
	}

	top, err := j.TopTrials("RUN1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 2, top[0].Seq)
	assert.Equal(t, 1, top[1].Seq)

	all, err := j.TopTrials("RUN1", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.False(t, all[3].Feasible)
}
