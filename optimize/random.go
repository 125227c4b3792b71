package optimize

import (
	"context"
)

// RandomSearch evaluates the seeds, then independent uniform draws from
// the base region, keeping the best feasible and the best overall trial.
type RandomSearch struct {
	cfg  Config
	ev   Evaluator
	pool *WorkerPool
}

func NewRandomSearch(cfg Config, ev Evaluator) (*RandomSearch, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := BaseBounds(cfg.Space).Narrow(cfg.Space, cfg.Bounds); err != nil {
		return nil, err
	}
	return &RandomSearch{cfg: cfg, ev: ev, pool: NewWorkerPool(cfg.Workers)}, nil
}

// Pool exposes the worker pool so callers can hook evaluation metrics.
func (s *RandomSearch) Pool() *WorkerPool { return s.pool }

// Run spends the whole trial budget. A cancelled ctx stops it between
// batches; the result then covers the merged batches and is marked
// Interrupted.
func (s *RandomSearch) Run(ctx context.Context) (Result, error) {
	st, err := newState(s.cfg)
	if err != nil {
		return Result{}, err
	}
	st.Phase = PhaseRandom
	st.GlobalTrials = s.cfg.Trials

	for !st.Done() {
		var cands []candidate
		for len(cands) < s.cfg.Batch && st.Used()+len(cands) < st.Trials {
			c, ok := st.nextUnseen(st.seedOrSample(s.cfg, st.Bounds, PhaseRandom))
			if !ok {
				st.Skipped++
				continue
			}
			cands = append(cands, c)
		}
		if err := runBatch(ctx, s.cfg, s.pool, s.ev, &st, cands, false); err != nil {
			if interrupted(err) {
				res := st.result(AlgoRandom)
				res.Interrupted = true
				return res, nil
			}
			return Result{}, err
		}
		logBatch(AlgoRandom, st)
		if s.cfg.OnBatch != nil {
			s.cfg.OnBatch(st)
		}
	}
	st.Phase = "done"
	return st.result(AlgoRandom), nil
}
