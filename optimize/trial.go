package optimize

import (
	"context"
	"slices"

	"github.com/i-zrhe2016/amazing-3.1/strategy"
	"github.com/i-zrhe2016/amazing-3.1/window"
)

// Phases a trial can come from.
const (
	PhaseSeed    = "seed"
	PhaseRandom  = "random"
	PhaseGlobal  = "global"
	PhaseLocal   = "local"
	PhaseHoldout = "holdout"
)

// Trial is one evaluated parameter set.
type Trial struct {
	Seq         int                 `json:"seq"`
	Phase       string              `json:"phase"`
	Score       float64             `json:"score"`
	Feasible    bool                `json:"feasible"`
	Fingerprint string              `json:"-"`
	Params      strategy.Params     `json:"params"`
	Aggregate   window.Aggregate    `json:"aggregate"`
	Years       []window.YearResult `json:"yearly_results"`
}

// Evaluator scores one parameter set. Implementations must be pure
// functions of the set and safe for concurrent use.
type Evaluator interface {
	Evaluate(ctx context.Context, p strategy.Params) (Trial, error)
}

// WindowEvaluator scores a set by running it over a window.Evaluator's
// windows and applying the objective to their aggregate.
type WindowEvaluator struct {
	Windows   *window.Evaluator
	Objective Objective
}

func (w WindowEvaluator) Evaluate(ctx context.Context, p strategy.Params) (Trial, error) {
	years, err := w.Windows.Evaluate(ctx, p)
	if err != nil {
		return Trial{}, err
	}
	agg := window.Summarize(years, w.Windows.Limits())
	return Trial{
		Score:       w.Objective.Score(agg),
		Feasible:    w.Objective.Feasible(agg),
		Fingerprint: p.Fingerprint(),
		Params:      p,
		Aggregate:   agg,
		Years:       years,
	}, nil
}

// pushTop inserts t into a best-first pool capped at k. Equal scores
// keep insertion order, so the first-seen trial ranks higher.
func pushTop(pool []Trial, t Trial, k int) []Trial {
	i, _ := slices.BinarySearchFunc(pool, t.Score, func(e Trial, s float64) int {
		if e.Score >= s {
			return -1
		}
		return 1
	})
	if i >= k {
		return pool
	}
	pool = slices.Insert(pool, i, t)
	if len(pool) > k {
		pool = pool[:k]
	}
	return pool
}
