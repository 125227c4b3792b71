package optimize

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/sim"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
	"github.com/i-zrhe2016/amazing-3.1/window"
)

type evalFunc func(ctx context.Context, p strategy.Params) (Trial, error)

func (f evalFunc) Evaluate(ctx context.Context, p strategy.Params) (Trial, error) { return f(ctx, p) }

// bowl peaks at step 200, lot 0.04, k_lot 1.2 and is feasible for the
// milder progressions only.
var bowl = evalFunc(func(ctx context.Context, p strategy.Params) (Trial, error) {
	if err := ctx.Err(); err != nil {
		return Trial{}, err
	}
	score := 5000 - math.Abs(float64(p.Step)-200) - 1000*math.Abs(p.Lot-0.04) - 100*math.Abs(p.KLot-1.2)
	return Trial{
		Score:       score,
		Feasible:    p.KLot <= 1.25 && p.Lot <= 0.06,
		Fingerprint: p.Fingerprint(),
		Params:      p,
	}, nil
})

func runSearch(t *testing.T, algo string, cfg Config, ev Evaluator) Result {
	t.Helper()
	var (
		res Result
		err error
	)
	switch algo {
	case AlgoRandom:
		s, nerr := NewRandomSearch(cfg, ev)
		require.NoError(t, nerr)
		res, err = s.Run(context.Background())
	default:
		s, nerr := NewAdaptiveSearch(cfg, ev)
		require.NoError(t, nerr)
		res, err = s.Run(context.Background())
	}
	require.NoError(t, err)
	return res
}

func TestSearchIsDeterministic(t *testing.T) {
	t.Parallel()

	for _, algo := range []string{AlgoRandom, AlgoAdaptive} {
		t.Run(algo, func(t *testing.T) {
			t.Parallel()
			cfg := Config{Trials: 60, Seed: 42, Seeds: Seeds()}

			cfg.Workers = 1
			one := runSearch(t, algo, cfg, bowl)
			cfg.Workers = 4
			four := runSearch(t, algo, cfg, bowl)
			again := runSearch(t, algo, cfg, bowl)

			assert.Equal(t, one, four)
			assert.Equal(t, four, again)
			assert.Equal(t, algo, one.Algorithm)

			cfg.Seed = 43
			other := runSearch(t, algo, cfg, bowl)
			assert.NotEqual(t, one.TopAll, other.TopAll)
		})
	}
}

func TestBestFeasibleSatisfiesPredicate(t *testing.T) {
	t.Parallel()

	for _, algo := range []string{AlgoRandom, AlgoAdaptive} {
		t.Run(algo, func(t *testing.T) {
			t.Parallel()
			var seen []Trial
			cfg := Config{Trials: 50, Seed: 7, Workers: 3, OnTrial: func(tr Trial) { seen = append(seen, tr) }}
			res := runSearch(t, algo, cfg, bowl)

			require.Len(t, seen, res.Evaluated)
			assert.Equal(t, res.Trials, res.Evaluated+res.Skipped)
			require.NotNil(t, res.BestFeasible)
			require.NotNil(t, res.BestAny)
			assert.True(t, res.BestFeasible.Feasible)
			assert.Same(t, res.BestFeasible, res.Selected())

			feasible := 0
			for i, tr := range seen {
				assert.Equal(t, i+1, tr.Seq)
				assert.LessOrEqual(t, tr.Score, res.BestAny.Score)
				if tr.Feasible {
					feasible++
					assert.LessOrEqual(t, tr.Score, res.BestFeasible.Score)
				}
			}
			assert.Equal(t, feasible, res.FeasibleCount)
			assert.LessOrEqual(t, len(res.TopAll), topAllSize)
			assert.LessOrEqual(t, len(res.TopFeasible), topFeasibleSize)
		})
	}
}

func TestNothingFeasible(t *testing.T) {
	t.Parallel()

	never := evalFunc(func(ctx context.Context, p strategy.Params) (Trial, error) {
		tr, err := bowl(ctx, p)
		tr.Feasible = false
		return tr, err
	})
	res := runSearch(t, AlgoAdaptive, Config{Trials: 20, Seed: 1}, never)
	assert.Nil(t, res.BestFeasible)
	assert.Zero(t, res.FeasibleCount)
	assert.Same(t, res.BestAny, res.Selected())
	assert.Equal(t, res.TopAll, res.Elite())
}

func TestSearchRejectsBadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no trials", Config{Trials: 0}},
		{"negative trials", Config{Trials: -3}},
		{"bounds outside space", Config{Trials: 5, Bounds: map[string]Range{"step": {Low: 0, High: 1}}}},
		{"bounds on unsearched dim", Config{Trials: 5, Bounds: map[string]Range{"totals": {Low: 20, High: 30}}}},
		{"bad seed", Config{Trials: 5, Seeds: []strategy.Params{{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRandomSearch(tt.cfg, bowl)
			assert.True(t, errs.IsParameter(err), "random: %v", err)
			_, err = NewAdaptiveSearch(tt.cfg, bowl)
			assert.True(t, errs.IsParameter(err), "adaptive: %v", err)
		})
	}
}

func TestSearchStaysInsideBounds(t *testing.T) {
	t.Parallel()

	over := map[string]Range{"step": {Low: 150, High: 180}}
	var outside atomic.Int32
	ev := evalFunc(func(ctx context.Context, p strategy.Params) (Trial, error) {
		if p.Step < 150 || p.Step > 180 {
			outside.Add(1)
		}
		return bowl(ctx, p)
	})
	res := runSearch(t, AlgoRandom, Config{Trials: 40, Seed: 3, Workers: 2, Bounds: over}, ev)
	assert.Zero(t, outside.Load())
	assert.Equal(t, Range{Low: 150, High: 180}, res.Bounds.Numeric["step"])
}

func TestCancelledSearchIsInterrupted(t *testing.T) {
	t.Parallel()

	for _, algo := range []string{AlgoRandom, AlgoAdaptive} {
		t.Run(algo, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			cfg := Config{Trials: 100, Seed: 5, Batch: 8, OnBatch: func(State) { cancel() }}

			var res Result
			var err error
			if algo == AlgoRandom {
				s, nerr := NewRandomSearch(cfg, bowl)
				require.NoError(t, nerr)
				res, err = s.Run(ctx)
			} else {
				s, nerr := NewAdaptiveSearch(cfg, bowl)
				require.NoError(t, nerr)
				res, err = s.Run(ctx)
			}
			require.NoError(t, err)
			assert.True(t, res.Interrupted)
			assert.Equal(t, 8, res.Evaluated)
			assert.NotNil(t, res.BestAny)
		})
	}
}

func TestEvaluationErrorAbortsSearch(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ev := evalFunc(func(ctx context.Context, p strategy.Params) (Trial, error) {
		if p.Step > 300 {
			return Trial{}, boom
		}
		return bowl(ctx, p)
	})
	s, err := NewRandomSearch(Config{Trials: 200, Seed: 9}, ev)
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestAdaptivePhases(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5, GlobalTrials(5))
	assert.Equal(t, 10, GlobalTrials(20))
	assert.Equal(t, 30, GlobalTrials(90))

	var phases []string
	cfg := Config{Trials: 30, Seed: 8, Seeds: Seeds(), OnTrial: func(tr Trial) { phases = append(phases, tr.Phase) }}
	res := runSearch(t, AlgoAdaptive, cfg, bowl)

	assert.Equal(t, 10, res.GlobalTrials)
	assert.Equal(t, 20, res.LocalTrials)
	require.GreaterOrEqual(t, len(phases), 10)
	assert.Equal(t, []string{PhaseSeed, PhaseSeed, PhaseSeed, PhaseSeed}, phases[:4])
	for _, ph := range phases[4:10] {
		assert.Equal(t, PhaseGlobal, ph)
	}
	for _, ph := range phases[10:] {
		assert.Equal(t, PhaseLocal, ph)
	}
}

func TestAdaptiveBoundsNeverGrow(t *testing.T) {
	t.Parallel()

	s, err := NewAdaptiveSearch(Config{Trials: 120, Seed: 21, Space: FullSpace(), Seeds: Seeds()}, bowl)
	require.NoError(t, err)
	st, err := s.Init()
	require.NoError(t, err)

	steps := 0
	for !st.Done() {
		prev := st.Bounds.Clone()
		st, err = s.Step(context.Background(), st)
		require.NoError(t, err)
		steps++
		for name, r := range st.Bounds.Numeric {
			assert.GreaterOrEqual(t, r.Low, prev.Numeric[name].Low, "batch %d %s", steps, name)
			assert.LessOrEqual(t, r.High, prev.Numeric[name].High, "batch %d %s", steps, name)
		}
		for name, p := range st.Bounds.BoolProb {
			if st.Phase != PhaseGlobal {
				assert.True(t, p >= 0.1 && p <= 0.9, "%s: %v", name, p)
			}
		}
	}
	assert.Equal(t, "done", st.Phase)
	assert.Equal(t, 120, st.Used())

	again, err := s.Step(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, st.Evaluated, again.Evaluated)
}

func TestPushTop(t *testing.T) {
	t.Parallel()

	var pool []Trial
	for i, score := range []float64{1, 3, 1, 2, 3, 0} {
		pool = pushTop(pool, Trial{Seq: i + 1, Score: score}, 4)
	}
	seqs := make([]int, len(pool))
	for i, tr := range pool {
		seqs[i] = tr.Seq
	}
	// Ties keep the first-seen trial ahead.
	assert.Equal(t, []int{2, 5, 4, 1}, seqs)
}

func TestWorkerPoolKeepsOrder(t *testing.T) {
	t.Parallel()

	var cands []strategy.Params
	for i := range 12 {
		p := strategy.Preserved()
		p.Step = 70 + 5*i
		cands = append(cands, p)
	}
	slowFirst := evalFunc(func(ctx context.Context, p strategy.Params) (Trial, error) {
		time.Sleep(time.Duration(130-p.Step/5) * 50 * time.Microsecond)
		return bowl(ctx, p)
	})

	pool := NewWorkerPool(4)
	var calls atomic.Int32
	pool.OnDone = func(time.Duration, error) { calls.Add(1) }
	out, err := pool.Evaluate(context.Background(), slowFirst, cands)
	require.NoError(t, err)
	require.Len(t, out, len(cands))
	for i, tr := range out {
		assert.Equal(t, cands[i].Step, tr.Params.Step)
	}
	assert.EqualValues(t, len(cands), calls.Load())
	assert.Equal(t, 4, pool.Workers())
	assert.Positive(t, NewWorkerPool(0).Workers())

	out, err = pool.Evaluate(context.Background(), slowFirst, nil)
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cand := func(score float64, step int) Trial {
		p := strategy.Preserved()
		p.Step = step
		return Trial{Score: score, Params: p}
	}
	cands := []Trial{cand(10, 100), cand(9, 200), cand(8, 300)}
	linear := evalFunc(func(_ context.Context, p strategy.Params) (Trial, error) {
		return Trial{Score: float64(p.Step), Params: p}, nil
	})

	got, err := Validate(context.Background(), linear, cands, 5, NewWorkerPool(2))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{300, 200, 100}, []int{got[0].Holdout.Params.Step, got[1].Holdout.Params.Step, got[2].Holdout.Params.Step})
	assert.InDelta(t, 0.45*8+0.55*300, got[0].Combined, 1e-9)
	for i, r := range got {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, PhaseHoldout, r.Holdout.Phase)
		assert.Equal(t, r.Search.Params, r.Holdout.Params)
	}

	got, err = Validate(context.Background(), linear, cands, 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 200, got[0].Search.Params.Step)

	got, err = Validate(context.Background(), linear, cands, 0, nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestWindowEvaluator(t *testing.T) {
	t.Parallel()

	chf := market.Instruments["USD_CHF"]
	bars := market.Synthetic(chf, market.SynthOptions{
		Start:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Bars:    600,
		Price:   0.9,
		VolPips: 5,
		Seed:    4,
	})
	ws := window.Split(bars, 2, 24*time.Hour)
	require.Len(t, ws, 2)

	tests := []struct {
		strategy string
		mode     Mode
	}{
		{"noop", ModeNoBlowup},
		{"amazing31", ModeDrawdown},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			t.Parallel()
			wev, err := window.NewEvaluator(window.Config{
				Instrument:       chf,
				Strategy:         tt.strategy,
				Cost:             sim.CostSpec{Model: "fixed", SpreadPips: 1},
				DrawdownLimitPct: 30,
			}, ws)
			require.NoError(t, err)
			obj := Objective{Mode: tt.mode, DrawdownLimitPct: 30}
			ev := WindowEvaluator{Windows: wev, Objective: obj}

			p := strategy.Preserved()
			tr, err := ev.Evaluate(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, p.Fingerprint(), tr.Fingerprint)
			assert.Len(t, tr.Years, tr.Aggregate.YearsRan)
			assert.Equal(t, 2, tr.Aggregate.Windows)
			assert.Equal(t, obj.Feasible(tr.Aggregate), tr.Feasible)
			assert.Equal(t, obj.Score(tr.Aggregate), tr.Score)
			if tt.strategy == "noop" {
				assert.True(t, tr.Feasible)
				assert.Zero(t, tr.Score)
			}
		})
	}
}
