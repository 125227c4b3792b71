package optimize

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

// Holdout blend weights: the holdout score counts slightly more than the
// in-sample one.
const (
	searchWeight  = 0.45
	holdoutWeight = 0.55
)

// HoldoutResult is a search trial re-evaluated on data it was not
// selected on.
type HoldoutResult struct {
	Rank     int     `json:"rank"`
	Combined float64 `json:"combined_score"`
	Search   Trial   `json:"search"`
	Holdout  Trial   `json:"holdout"`
}

// Validate re-evaluates the first k candidates on ev and ranks them by
// 0.45·search score + 0.55·holdout score. Ties keep the search order.
func Validate(ctx context.Context, ev Evaluator, cands []Trial, k int, pool *WorkerPool) ([]HoldoutResult, error) {
	if k <= 0 || len(cands) == 0 {
		return nil, nil
	}
	cands = cands[:min(k, len(cands))]
	if pool == nil {
		pool = NewWorkerPool(0)
	}

	params := make([]strategy.Params, len(cands))
	for i, c := range cands {
		params[i] = c.Params
	}
	trials, err := pool.Evaluate(ctx, ev, params)
	if err != nil {
		return nil, fmt.Errorf("holdout: %w", err)
	}

	out := make([]HoldoutResult, len(cands))
	for i, t := range trials {
		t.Seq = i + 1
		t.Phase = PhaseHoldout
		out[i] = HoldoutResult{
			Combined: searchWeight*cands[i].Score + holdoutWeight*t.Score,
			Search:   cands[i],
			Holdout:  t,
		}
	}
	slices.SortStableFunc(out, func(a, b HoldoutResult) int {
		switch {
		case a.Combined > b.Combined:
			return -1
		case a.Combined < b.Combined:
			return 1
		}
		return 0
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	log.Info().Int("candidates", len(out)).Float64("best_combined", out[0].Combined).
		Msg("holdout validation done")
	return out, nil
}
