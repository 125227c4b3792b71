package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `run_id, trade_id, instrument, side, lots, entry_price, exit_price, open_time, close_time, realized_pl, reason, comment`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.RunID,
		&rec.TradeID,
		&rec.Instrument,
		&rec.Side,
		&rec.Lots,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPL,
		&rec.Reason,
		&rec.Comment,
	)
	return rec, err
}

func (j *SQLite) listTrades(query string, args ...any) ([]TradeRecord, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade of a run by ID.
func (j *SQLite) GetTrade(runID, tradeID string) (TradeRecord, error) {
	if err := j.Flush(); err != nil {
		return TradeRecord{}, err
	}
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE run_id = ? AND trade_id = ?`, runID, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesByRun returns a run's trades in close order.
func (j *SQLite) ListTradesByRun(runID string) ([]TradeRecord, error) {
	return j.listTrades(`SELECT `+tradeColumns+` FROM trades WHERE run_id = ? ORDER BY close_time ASC, trade_id ASC`, runID)
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.listTrades(`SELECT `+tradeColumns+` FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start, end)
}

func (j *SQLite) ListEquityByRun(runID string) ([]EquitySnapshot, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	rows, err := j.db.Query(`
		SELECT run_id, time, balance, equity, margin_used, free_margin, margin_level
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Balance, &e.Equity, &e.MarginUsed, &e.FreeMargin, &e.MarginLevel); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) GetRun(runID string) (RunRecord, error) {
	if err := j.Flush(); err != nil {
		return RunRecord{}, err
	}
	var r RunRecord
	err := j.db.QueryRow(`
		SELECT run_id, kind, created, symbol, data_file, algorithm, mode, seed, trials, years, drawdown_limit, feasible_found, best_score, best_params
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Kind, &r.Created, &r.Symbol, &r.DataFile, &r.Algorithm, &r.Mode, &r.Seed,
		&r.Trials, &r.Years, &r.DrawdownLimit, &r.FeasibleFound, &r.BestScore, &r.BestParams,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("run %q not found", runID)
		}
		return RunRecord{}, err
	}
	return r, nil
}

// TopTrials returns the k best-scoring trials of a run, feasible first.
// k <= 0 returns all of them.
func (j *SQLite) TopTrials(runID string, k int) ([]TrialRecord, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = -1
	}
	rows, err := j.db.Query(`
		SELECT run_id, seq, phase, score, feasible, fingerprint, sum_net, min_year_net, worst_dd, blowup_years, years_ran, params
		FROM trials
		WHERE run_id = ?
		ORDER BY feasible DESC, score DESC, seq ASC
		LIMIT ?`, runID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrialRecord
	for rows.Next() {
		var t TrialRecord
		if err := rows.Scan(&t.RunID, &t.Seq, &t.Phase, &t.Score, &t.Feasible, &t.Fingerprint,
			&t.SumNet, &t.MinYearNet, &t.WorstDD, &t.BlowupYears, &t.YearsRan, &t.Params); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
