// Package optimize searches the Amazing3.1 parameter space for sets that
// maximize multi-window profit under a feasibility predicate. Two
// searches share one evaluation contract: a plain random search and an
// adaptive elite search that refines its bounds after every batch.
package optimize

import (
	"math"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/pkg/stats"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindBool  Kind = "bool"
)

// Spec is one searchable dimension. Numeric values live on the grid
// Low + n*Step inside [Low, High]; floats are also rounded to Precision
// decimals. PTrue is the prior probability of a bool being set.
type Spec struct {
	Name      string  `json:"name" yaml:"name"`
	Kind      Kind    `json:"kind" yaml:"kind"`
	Low       float64 `json:"low,omitempty" yaml:"low,omitempty"`
	High      float64 `json:"high,omitempty" yaml:"high,omitempty"`
	Step      float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Precision int     `json:"precision,omitempty" yaml:"precision,omitempty"`
	PTrue     float64 `json:"p_true,omitempty" yaml:"p_true,omitempty"`
}

func intSpec(name string, low, high, step float64) Spec {
	return Spec{Name: name, Kind: KindInt, Low: low, High: high, Step: step}
}

func floatSpec(name string, low, high, step float64, prec int) Spec {
	return Spec{Name: name, Kind: KindFloat, Low: low, High: high, Step: step, Precision: prec}
}

func boolSpec(name string, pTrue float64) Spec {
	return Spec{Name: name, Kind: KindBool, PTrue: pTrue}
}

// Quantize snaps v onto the dimension's grid.
func (s Spec) Quantize(v float64) float64 {
	return s.quantizeIn(v, s.Low, s.High)
}

// quantizeIn clamps to [lo, hi] and snaps to the grid anchored at lo.
func (s Spec) quantizeIn(v, lo, hi float64) float64 {
	switch s.Kind {
	case KindBool:
		if v >= 0.5 {
			return 1
		}
		return 0
	case KindInt:
		c := stats.Clamp(math.Round(v), lo, hi)
		n := math.Round((c - lo) / s.Step)
		return stats.Clamp(lo+n*s.Step, lo, hi)
	default:
		c := stats.Clamp(v, lo, hi)
		n := math.Round((c - lo) / s.Step)
		return roundTo(stats.Clamp(lo+n*s.Step, lo, hi), s.Precision)
	}
}

func (s Spec) Validate() error {
	kind, ok := strategy.Kind(s.Name)
	if !ok {
		return errs.Param("space", "unknown dimension %q", s.Name)
	}
	if (kind == "bool") != (s.Kind == KindBool) {
		return errs.Param("space", "dimension %s is %s, not %s", s.Name, kind, s.Kind)
	}
	switch s.Kind {
	case KindBool:
		if s.PTrue < 0 || s.PTrue > 1 {
			return errs.Param("space", "%s: p_true must be in [0, 1]", s.Name)
		}
	case KindInt, KindFloat:
		if s.Step <= 0 {
			return errs.Param("space", "%s: step must be positive", s.Name)
		}
		if s.High < s.Low {
			return errs.Param("space", "%s: high %v is below low %v", s.Name, s.High, s.Low)
		}
	default:
		return errs.Param("space", "%s: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// Space is an ordered set of dimensions. The order fixes the sequence of
// random draws, so it is part of a search's reproducibility.
type Space []Spec

// FullSpace is every EA input the search may move.
func FullSpace() Space {
	return Space{
		intSpec("totals", 20, 80, 5),
		intSpec("max_spread", 20, 50, 2),
		boolSpec("close_buy_sell", 0.5),
		boolSpec("homeopathy_close_all", 0.35),
		boolSpec("homeopathy", 0.25),
		floatSpec("money", 0, 250, 0.1, 1),
		intSpec("first_step", 20, 140, 5),
		intSpec("min_distance", 30, 240, 5),
		intSpec("two_min_distance", 40, 280, 5),
		intSpec("step_trail_orders", 2, 18, 1),
		intSpec("step", 70, 340, 5),
		intSpec("two_step", 80, 360, 5),
		floatSpec("lot", 0.005, 0.10, 0.001, 3),
		floatSpec("max_lot", 0.40, 6.0, 0.01, 2),
		floatSpec("plus_lot", 0, 0.030, 0.001, 3),
		floatSpec("k_lot", 1.05, 1.45, 0.001, 3),
		floatSpec("close_all", 0.3, 4.0, 0.01, 2),
		boolSpec("profit_by_count", 0.5),
		floatSpec("stop_profit", 1.0, 14.0, 0.01, 2),
		floatSpec("max_loss", 40_000, 350_000, 10, 1),
		floatSpec("max_loss_close_all", 20, 350, 0.1, 1),
		boolSpec("check_margin_for_add_orders", 0.75),
	}
}

// DefaultSpace is the grid distance and the martingale lot progression;
// everything else stays at the base set's values.
func DefaultSpace() Space {
	s, _ := FullSpace().Select([]string{"step", "lot", "k_lot"})
	return s
}

// Select returns the named dimensions of s in the given order.
func (s Space) Select(names []string) (Space, error) {
	out := make(Space, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			return nil, errs.Param("space", "dimension %q listed twice", n)
		}
		seen[n] = true
		spec, ok := s.Lookup(n)
		if !ok {
			return nil, errs.Param("space", "unknown dimension %q", n)
		}
		out = append(out, spec)
	}
	return out, nil
}

func (s Space) Lookup(name string) (Spec, bool) {
	for _, spec := range s {
		if spec.Name == name {
			return spec, true
		}
	}
	return Spec{}, false
}

func (s Space) Names() []string {
	return stats.Map(s, func(spec Spec) string { return spec.Name })
}

func (s Space) Validate() error {
	if len(s) == 0 {
		return errs.Param("space", "no dimensions to search")
	}
	seen := map[string]bool{}
	for _, spec := range s {
		if seen[spec.Name] {
			return errs.Param("space", "dimension %q listed twice", spec.Name)
		}
		seen[spec.Name] = true
		if err := spec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Repair snaps every dimension of p onto its grid and restores the
// orderings the EA relies on: the second-tier distances are never below
// the first-tier ones, max_lot leaves room above lot and max_loss stays
// well above max_loss_close_all.
func (s Space) Repair(p *strategy.Params) {
	for _, spec := range s {
		v, err := p.Value(spec.Name)
		if err != nil {
			continue
		}
		_ = p.SetValue(spec.Name, spec.Quantize(v))
	}

	if p.TwoMinDistance < p.MinDistance {
		p.TwoMinDistance = p.MinDistance
	}
	if p.TwoStep < p.Step {
		p.TwoStep = p.Step
	}
	if p.MaxLot < p.Lot+0.01 {
		p.MaxLot = roundTo(p.Lot+0.01, 2)
	}
	if p.MaxLoss < p.MaxLossCloseAll+5_000 {
		p.MaxLoss = roundTo(p.MaxLossCloseAll+5_000, 1)
	}
}

// Seeds are hand-picked sets evaluated before any random draw: the
// preserved set and three variants with heavier lot progressions or a
// tighter grid.
func Seeds() []strategy.Params {
	base := strategy.Preserved()

	s1 := base
	s1.Lot, s1.MaxLot, s1.PlusLot, s1.KLot = 0.040, 1.20, 0.006, 1.140
	s1.CheckMarginForAddOrders = true

	s2 := base
	s2.Lot, s2.MaxLot, s2.PlusLot, s2.KLot = 0.055, 2.20, 0.008, 1.180
	s2.CloseAll = 2.20

	s3 := base
	s3.Totals, s3.FirstStep, s3.MinDistance, s3.TwoMinDistance = 45, 55, 120, 170
	s3.Step, s3.TwoStep = 210, 250
	s3.Lot, s3.MaxLot = 0.022, 0.95

	return []strategy.Params{base, s1, s2, s3}
}

func roundTo(v float64, digits int) float64 {
	f := math.Pow(10, float64(digits))
	return math.Round(v*f) / f
}
