package optimize

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"
)

// AdaptiveSearch is an elite search with boundary refinement. A global
// phase (a third of the budget, at least ten trials) evaluates the seeds
// and uniform draws from the base region. The local phase then draws
// each candidate from the elite pools: a u²-biased parent, crossed with
// a second parent 30% of the time, mutated with an adaptive step size,
// or 24% of the time a fresh draw from the current region. After every
// batch the region is refined from the elite and never grows.
type AdaptiveSearch struct {
	cfg  Config
	ev   Evaluator
	pool *WorkerPool
}

func NewAdaptiveSearch(cfg Config, ev Evaluator) (*AdaptiveSearch, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := BaseBounds(cfg.Space).Narrow(cfg.Space, cfg.Bounds); err != nil {
		return nil, err
	}
	return &AdaptiveSearch{cfg: cfg, ev: ev, pool: NewWorkerPool(cfg.Workers)}, nil
}

func (s *AdaptiveSearch) Pool() *WorkerPool { return s.pool }

// GlobalTrials is the size of the global phase for a budget.
func GlobalTrials(trials int) int {
	return min(trials, max(10, trials/3))
}

// Init returns the state before the first batch.
func (s *AdaptiveSearch) Init() (State, error) {
	st, err := newState(s.cfg)
	if err != nil {
		return State{}, err
	}
	st.Phase = PhaseGlobal
	st.GlobalTrials = GlobalTrials(s.cfg.Trials)
	st.LocalTrials = s.cfg.Trials - st.GlobalTrials
	return st, nil
}

// Step draws, evaluates and merges one batch and returns the new state.
// The batch never straddles the two phases. A state must be stepped at
// most once: it shares its generator and visited set with the result.
func (s *AdaptiveSearch) Step(ctx context.Context, st State) (State, error) {
	if st.Done() {
		return st, nil
	}
	global := st.Used() < st.GlobalTrials
	limit := st.Trials
	if global {
		limit = st.GlobalTrials
	}

	var cands []candidate
	for len(cands) < s.cfg.Batch && st.Used()+len(cands) < limit {
		var gen func() candidate
		if global {
			gen = st.seedOrSample(s.cfg, st.Base, PhaseGlobal)
		} else {
			gen = s.localCandidate(&st)
		}
		c, ok := st.nextUnseen(gen)
		if !ok {
			st.Skipped++
			continue
		}
		cands = append(cands, c)
	}

	if err := runBatch(ctx, s.cfg, s.pool, s.ev, &st, cands, !global); err != nil {
		return st, err
	}

	switch {
	case global && st.Used() >= st.GlobalTrials:
		// First refinement, from the base region.
		st.Bounds = Refine(s.cfg.Space, st.Base, st.Bounds, st.Elite())
		st.Phase = PhaseLocal
		log.Info().Int("global_trials", st.GlobalTrials).Int("feasible", st.FeasibleCount).
			Msg("refined bounds from the global phase")
	case !global:
		st.Bounds = Refine(s.cfg.Space, st.Base, st.Bounds, st.Elite())
	}
	if st.Done() {
		st.Phase = "done"
	}
	return st, nil
}

// Run steps until the budget is spent. A cancelled ctx stops it between
// batches and the partial result is marked Interrupted.
func (s *AdaptiveSearch) Run(ctx context.Context) (Result, error) {
	st, err := s.Init()
	if err != nil {
		return Result{}, err
	}
	for !st.Done() {
		next, err := s.Step(ctx, st)
		if err != nil {
			if interrupted(err) {
				res := st.result(AlgoAdaptive)
				res.Interrupted = true
				return res, nil
			}
			return Result{}, err
		}
		st = next
		logBatch(AlgoAdaptive, st)
		if s.cfg.OnBatch != nil {
			s.cfg.OnBatch(st)
		}
	}
	return st.result(AlgoAdaptive), nil
}

// localCandidate builds one local-phase draw from the state's pools and
// current region.
func (s *AdaptiveSearch) localCandidate(st *State) func() candidate {
	return func() candidate {
		sm := st.sampler
		pool := st.TopAll
		if len(st.TopFeasible) > 0 && sm.chance(0.75) {
			pool = st.TopFeasible
		}

		c := candidate{phase: PhaseLocal}
		if len(pool) == 0 || sm.chance(0.24) {
			c.params = sm.sample(s.cfg.Base, st.Bounds)
		} else {
			p1 := sm.parent(pool)
			if len(pool) >= 2 && sm.chance(0.30) {
				p2 := sm.parent(pool)
				c.params = sm.mutate(sm.crossover(p1.Params, p2.Params), st.Bounds, st.Sigma)
			} else {
				c.params = sm.mutate(p1.Params, st.Bounds, st.Sigma)
			}
		}
		if sm.chance(0.08) {
			c.params = sm.mutate(c.params, st.Bounds, math.Min(st.Sigma*1.4, 2.5))
		}
		return c
	}
}
