// Package report turns search and backtest results into files and
// console tables: the JSON result file, go-pretty summaries and an xlsx
// workbook.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/optimize"
)

// Meta is the run context written next to the search outcome.
type Meta struct {
	RunID       string
	Symbol      string
	DataFile    string
	Years       int
	WindowYears int
	Trials      int
	Seed        uint64
	Algorithm   string
	Workers     int
	Generated   time.Time
}

// OptimizeReport is the JSON result file of `amazing optimize`.
type OptimizeReport struct {
	Objective        string  `json:"objective"`
	Symbol           string  `json:"symbol"`
	Mode             string  `json:"mode"`
	DrawdownLimitPct float64 `json:"drawdown_limit_pct"`
	TargetReturnPct  float64 `json:"target_return_pct,omitempty"`
	Years            int     `json:"years"`
	WindowYears      int     `json:"window_years"`
	GeneratedAtUTC   string  `json:"generated_at_utc"`
	DataFile         string  `json:"data_file"`
	RunID            string  `json:"run_id"`

	Trials        int    `json:"trials"`
	Seed          uint64 `json:"seed"`
	Algorithm     string `json:"algorithm"`
	Workers       int    `json:"workers,omitempty"`
	Evaluated     int    `json:"evaluated"`
	Skipped       int    `json:"skipped"`
	FeasibleCount int    `json:"feasible_count"`
	GlobalTrials  int    `json:"global_trials,omitempty"`
	LocalTrials   int    `json:"local_trials,omitempty"`

	ChosenBoundaries optimize.Bounds `json:"chosen_boundaries"`
	FeasibleFound    bool            `json:"feasible_found"`
	BestFeasible     *optimize.Trial `json:"best_feasible"`
	BestAny          *optimize.Trial `json:"best_any"`
	SelectedResult   *optimize.Trial `json:"selected_result"`

	Holdout     []optimize.HoldoutResult `json:"holdout,omitempty"`
	Interrupted bool                     `json:"interrupted"`
}

// NewOptimizeReport assembles the result file. With holdout results the
// selected set is the best combined one, otherwise the search's choice.
func NewOptimizeReport(m Meta, obj optimize.Objective, res optimize.Result, holdout []optimize.HoldoutResult) OptimizeReport {
	if m.Generated.IsZero() {
		m.Generated = time.Now()
	}
	selected := res.Selected()
	if len(holdout) > 0 {
		s := holdout[0].Search
		selected = &s
	}
	return OptimizeReport{
		Objective:        obj.Describe(m.Years / max(m.WindowYears, 1)),
		Symbol:           m.Symbol,
		Mode:             string(obj.Mode),
		DrawdownLimitPct: obj.DrawdownLimitPct,
		TargetReturnPct:  obj.TargetReturnPct,
		Years:            m.Years,
		WindowYears:      m.WindowYears,
		GeneratedAtUTC:   m.Generated.UTC().Format(time.RFC3339),
		DataFile:         m.DataFile,
		RunID:            m.RunID,
		Trials:           res.Trials,
		Seed:             m.Seed,
		Algorithm:        res.Algorithm,
		Workers:          m.Workers,
		Evaluated:        res.Evaluated,
		Skipped:          res.Skipped,
		FeasibleCount:    res.FeasibleCount,
		GlobalTrials:     res.GlobalTrials,
		LocalTrials:      res.LocalTrials,
		ChosenBoundaries: res.Bounds,
		FeasibleFound:    res.BestFeasible != nil,
		BestFeasible:     res.BestFeasible,
		BestAny:          res.BestAny,
		SelectedResult:   selected,
		Holdout:          holdout,
		Interrupted:      res.Interrupted,
	}
}

// WriteJSON writes v as indented JSON, creating parent directories. The
// file is written next to path and renamed so readers never see half of
// it.
func WriteJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// ReadJSON loads a file written by WriteJSON into v.
func ReadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
