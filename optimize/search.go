package optimize

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

const (
	DefaultBatch = 8

	topAllSize      = 20
	topFeasibleSize = 14
	maxAttempts     = 50
)

// Algorithm names.
const (
	AlgoRandom   = "random"
	AlgoAdaptive = "adaptive"
)

type Config struct {
	Trials  int
	Seed    uint64
	Workers int // <= 0: one per CPU
	// Batch is the number of candidates drawn and evaluated between two
	// state merges. It is independent of Workers so results do not
	// depend on the machine.
	Batch int

	Space Space
	Base  strategy.Params // values of every dimension outside Space
	Seeds []strategy.Params
	// Bounds overrides parts of the base region.
	Bounds map[string]Range

	// OnTrial sees every merged trial in order.
	OnTrial func(Trial)
	// OnBatch sees the state after every merged batch.
	OnBatch func(State)
}

func (c Config) withDefaults() Config {
	if c.Batch <= 0 {
		c.Batch = DefaultBatch
	}
	if c.Space == nil {
		c.Space = DefaultSpace()
	}
	if c.Base == (strategy.Params{}) {
		c.Base = strategy.Preserved()
	}
	return c
}

func (c Config) Validate() error {
	if c.Trials < 1 {
		return errs.Param("trials", "must be at least 1, got %d", c.Trials)
	}
	if err := c.Space.Validate(); err != nil {
		return err
	}
	if err := c.Base.Validate(); err != nil {
		return err
	}
	for i, p := range c.Seeds {
		if err := p.Validate(); err != nil {
			return errs.Param("seeds", "seed %d: %v", i+1, err)
		}
	}
	return nil
}

// State is everything a search carries from one batch to the next.
type State struct {
	Phase string `json:"phase"`

	Base   Bounds `json:"-"`
	Bounds Bounds `json:"bounds"`

	TopAll       []Trial `json:"-"`
	TopFeasible  []Trial `json:"-"`
	BestAny      *Trial  `json:"-"`
	BestFeasible *Trial  `json:"-"`

	Visited map[string]struct{} `json:"-"`
	// Pending seeds not yet evaluated.
	Seeds []strategy.Params `json:"-"`

	Sigma      float64 `json:"sigma"`
	Stagnation int     `json:"stagnation"`

	Evaluated     int `json:"evaluated"`
	FeasibleCount int `json:"feasible_count"`
	// Skipped counts budget slots for which no unseen candidate was found.
	Skipped int `json:"skipped"`

	GlobalTrials int `json:"global_trials"`
	LocalTrials  int `json:"local_trials"`
	Trials       int `json:"trials"`

	// Sampler is the state's only source of randomness.
	sampler *sampler
}

// Used is the part of the trial budget already spent.
func (s State) Used() int { return s.Evaluated + s.Skipped }

func (s State) Done() bool { return s.Used() >= s.Trials }

// Elite is the feasible pool when it has members, else the overall one.
func (s State) Elite() []Trial {
	if len(s.TopFeasible) > 0 {
		return s.TopFeasible
	}
	return s.TopAll
}

// Result is the outcome of a search.
type Result struct {
	Algorithm     string  `json:"algorithm"`
	Trials        int     `json:"trials"`
	Evaluated     int     `json:"evaluated"`
	FeasibleCount int     `json:"feasible_count"`
	Skipped       int     `json:"skipped"`
	GlobalTrials  int     `json:"global_trials"`
	LocalTrials   int     `json:"local_trials"`
	Bounds        Bounds  `json:"chosen_boundaries"`
	BestAny       *Trial  `json:"best_any"`
	BestFeasible  *Trial  `json:"best_feasible"`
	TopAll        []Trial `json:"-"`
	TopFeasible   []Trial `json:"-"`
	Interrupted   bool    `json:"interrupted"`
}

// Selected is the best feasible trial, or the best of all when nothing
// was feasible.
func (r Result) Selected() *Trial {
	if r.BestFeasible != nil {
		return r.BestFeasible
	}
	return r.BestAny
}

// Elite is the pool holdout validation draws from: feasible trials when
// there are any.
func (r Result) Elite() []Trial {
	if len(r.TopFeasible) > 0 {
		return r.TopFeasible
	}
	return r.TopAll
}

func (s State) result(algo string) Result {
	return Result{
		Algorithm:     algo,
		Trials:        s.Trials,
		Evaluated:     s.Evaluated,
		FeasibleCount: s.FeasibleCount,
		Skipped:       s.Skipped,
		GlobalTrials:  s.GlobalTrials,
		LocalTrials:   s.LocalTrials,
		Bounds:        s.Bounds.Clone(),
		BestAny:       s.BestAny,
		BestFeasible:  s.BestFeasible,
		TopAll:        s.TopAll,
		TopFeasible:   s.TopFeasible,
	}
}

func newState(cfg Config) (State, error) {
	base := BaseBounds(cfg.Space)
	bounds, err := base.Narrow(cfg.Space, cfg.Bounds)
	if err != nil {
		return State{}, err
	}
	seeds := make([]strategy.Params, len(cfg.Seeds))
	copy(seeds, cfg.Seeds)
	return State{
		Base:    base,
		Bounds:  bounds,
		Visited: map[string]struct{}{},
		Seeds:   seeds,
		Sigma:   1,
		Trials:  cfg.Trials,
		sampler: newSampler(cfg.Seed, cfg.Space),
	}, nil
}

// nextUnseen calls gen until it yields a set not evaluated before, at
// most maxAttempts times.
func (s *State) nextUnseen(gen func() candidate) (candidate, bool) {
	for range maxAttempts {
		c := gen()
		fp := c.params.Fingerprint()
		if _, dup := s.Visited[fp]; dup {
			continue
		}
		s.Visited[fp] = struct{}{}
		return c, true
	}
	return candidate{}, false
}

// seedOrSample takes the next pending seed, repaired onto the space, or
// draws from b.
func (s *State) seedOrSample(cfg Config, b Bounds, phase string) func() candidate {
	return func() candidate {
		if len(s.Seeds) > 0 {
			p := s.Seeds[0]
			s.Seeds = s.Seeds[1:]
			cfg.Space.Repair(&p)
			return candidate{params: p, phase: PhaseSeed}
		}
		return candidate{params: s.sampler.sample(cfg.Base, b), phase: phase}
	}
}

// merge folds one evaluated trial into the state. It returns the trial as
// recorded and whether it improved the best-any or best-feasible score.
func (s *State) merge(t Trial, phase string) (Trial, bool) {
	s.Evaluated++
	t.Seq = s.Evaluated
	t.Phase = phase

	improved := false
	if s.BestAny == nil || t.Score > s.BestAny.Score {
		c := t
		s.BestAny = &c
		improved = true
	}
	if t.Feasible {
		s.FeasibleCount++
		if s.BestFeasible == nil || t.Score > s.BestFeasible.Score {
			c := t
			s.BestFeasible = &c
			improved = true
		}
		s.TopFeasible = pushTop(s.TopFeasible, t, topFeasibleSize)
	}
	s.TopAll = pushTop(s.TopAll, t, topAllSize)
	return t, improved
}

// adapt widens sigma while the local phase stagnates and narrows it on
// every improvement.
func (s *State) adapt(improved bool) {
	if improved {
		s.Sigma = math.Max(s.Sigma*0.90, 0.25)
		s.Stagnation = 0
		return
	}
	s.Stagnation++
	if s.Stagnation%12 == 0 {
		s.Sigma = math.Min(s.Sigma*1.20, 2.5)
	}
	if s.Stagnation%40 == 0 {
		s.Sigma = math.Min(s.Sigma*1.30, 2.5)
	}
}

type candidate struct {
	params strategy.Params
	phase  string
}

// runBatch evaluates cands on the pool and merges the results in order.
func runBatch(ctx context.Context, cfg Config, pool *WorkerPool, ev Evaluator, st *State, cands []candidate, local bool) error {
	params := make([]strategy.Params, len(cands))
	for i, c := range cands {
		params[i] = c.params
	}
	trials, err := pool.Evaluate(ctx, ev, params)
	if err != nil {
		return err
	}
	for i, t := range trials {
		merged, improved := st.merge(t, cands[i].phase)
		if local {
			st.adapt(improved)
		}
		if cfg.OnTrial != nil {
			cfg.OnTrial(merged)
		}
	}
	return nil
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func logBatch(algo string, st State) {
	ev := log.Info().Str("algo", algo).Str("phase", st.Phase).
		Int("evaluated", st.Evaluated).Int("trials", st.Trials).
		Int("feasible", st.FeasibleCount).Float64("sigma", st.Sigma)
	if st.BestAny != nil {
		ev = ev.Float64("best_any", st.BestAny.Score)
	}
	if st.BestFeasible != nil {
		ev = ev.Float64("best_feasible", st.BestFeasible.Score)
	}
	ev.Msg("batch merged")
}
