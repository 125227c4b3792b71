package journal

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// batchSize is how many inserts share one transaction.
const batchSize = 5000

// SQLite is a Journal backed by a single database file. It also stores
// optimizer runs and trials. Safe for concurrent use.
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	tx      *sql.Tx
	pending int
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) exec(query string, args ...any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.tx == nil {
		tx, err := j.db.Begin()
		if err != nil {
			return err
		}
		j.tx = tx
	}
	if _, err := j.tx.Exec(query, args...); err != nil {
		return err
	}
	j.pending++
	if j.pending >= batchSize {
		return j.commitLocked()
	}
	return nil
}

func (j *SQLite) commitLocked() error {
	if j.tx == nil {
		return nil
	}
	err := j.tx.Commit()
	j.tx = nil
	j.pending = 0
	return err
}

// Flush commits buffered inserts so queries can see them.
func (j *SQLite) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.commitLocked()
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	return j.exec(`
		INSERT INTO trades
		(run_id, trade_id, instrument, side, lots, entry_price, exit_price, open_time, close_time, realized_pl, reason, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TradeID, t.Instrument, t.Side, t.Lots, t.EntryPrice,
		t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPL, t.Reason, t.Comment,
	)
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	return j.exec(`
		INSERT INTO equity
		(run_id, time, balance, equity, margin_used, free_margin, margin_level)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Balance, e.Equity, e.MarginUsed, e.FreeMargin, e.MarginLevel,
	)
}

// RecordRun inserts or replaces the run row; the optimizer writes it
// once at start and again with the final best.
func (j *SQLite) RecordRun(r RunRecord) error {
	return j.exec(`
		INSERT OR REPLACE INTO runs
		(run_id, kind, created, symbol, data_file, algorithm, mode, seed, trials, years, drawdown_limit, feasible_found, best_score, best_params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Kind, r.Created, r.Symbol, r.DataFile, r.Algorithm, r.Mode, r.Seed,
		r.Trials, r.Years, r.DrawdownLimit, r.FeasibleFound, r.BestScore, r.BestParams,
	)
}

func (j *SQLite) RecordTrial(t TrialRecord) error {
	return j.exec(`
		INSERT INTO trials
		(run_id, seq, phase, score, feasible, fingerprint, sum_net, min_year_net, worst_dd, blowup_years, years_ran, params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.Seq, t.Phase, t.Score, t.Feasible, t.Fingerprint, t.SumNet,
		t.MinYearNet, t.WorstDD, t.BlowupYears, t.YearsRan, t.Params,
	)
}

func (j *SQLite) Close() error {
	if err := j.Flush(); err != nil {
		_ = j.db.Close()
		return err
	}
	return j.db.Close()
}
