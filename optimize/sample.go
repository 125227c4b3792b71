package optimize

import (
	"math"
	"math/rand/v2"

	"github.com/i-zrhe2016/amazing-3.1/pkg/stats"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

// sampler draws candidates. Every draw goes through one generator in a
// fixed order, which is what makes a search reproducible from its seed.
type sampler struct {
	rng   *rand.Rand
	space Space
}

func newSampler(seed uint64, s Space) *sampler {
	return &sampler{rng: rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)), space: s}
}

func (s *sampler) chance(p float64) bool { return s.rng.Float64() < p }

func (s *sampler) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Float64()*(hi-lo)
}

// gridRange is the part of an int dimension's grid inside r.
func gridRange(spec Spec, r Range) (lo, hi float64, steps int) {
	lo = spec.Quantize(math.Round(r.Low))
	hi = math.Max(lo, spec.Quantize(math.Round(r.High)))
	steps = max(0, int(math.Round((hi-lo)/spec.Step)))
	return lo, hi, steps
}

// draw picks a fresh value for one dimension inside b.
func (s *sampler) draw(spec Spec, b Bounds, clampProb bool) float64 {
	switch spec.Kind {
	case KindBool:
		p := b.probOf(spec)
		if clampProb {
			p = stats.Clamp(p, 0.02, 0.98)
		}
		if s.chance(p) {
			return 1
		}
		return 0
	case KindInt:
		lo, _, steps := gridRange(spec, b.rangeOf(spec))
		return lo + float64(s.rng.IntN(steps+1))*spec.Step
	default:
		r := b.rangeOf(spec)
		return spec.Quantize(s.uniform(r.Low, r.High))
	}
}

// sample draws every dimension of base independently from b.
func (s *sampler) sample(base strategy.Params, b Bounds) strategy.Params {
	p := base
	for _, spec := range s.space {
		var v float64
		if spec.Name == "money" && s.chance(0.85) {
			// money > 0 switches the EA to its cautious tier; keep it rare.
			v = 0
		} else {
			v = s.draw(spec, b, true)
		}
		_ = p.SetValue(spec.Name, v)
	}
	s.space.Repair(&p)
	return p
}

// mutate perturbs each dimension with a probability that grows with
// scale: mostly a local jump of up to 20% (ints) or 18% (floats) of the
// range times scale, sometimes a fresh draw. At least one dimension
// always changes.
func (s *sampler) mutate(base strategy.Params, b Bounds, scale float64) strategy.Params {
	p := base
	changed := false
	pMut := math.Min(0.10+0.20*scale, 0.85)

	for _, spec := range s.space {
		if !s.chance(pMut) {
			continue
		}
		cur, _ := p.Value(spec.Name)
		var v float64
		switch spec.Kind {
		case KindBool:
			if s.chance(0.5) {
				v = 1 - cur
			} else {
				v = s.draw(spec, b, true)
			}
		case KindInt:
			lo, hi, steps := gridRange(spec, b.rangeOf(spec))
			if s.chance(math.Min(0.05*scale, 0.35)) {
				v = lo + float64(s.rng.IntN(steps+1))*spec.Step
			} else {
				maxJump := int(math.Max(1, math.Round(float64(max(steps, 1))*0.20*scale)))
				delta := s.rng.IntN(2*maxJump+1) - maxJump
				v = spec.quantizeIn(cur+float64(delta)*spec.Step, lo, hi)
			}
		default:
			r := b.rangeOf(spec)
			if s.chance(math.Min(0.06*scale, 0.30)) {
				v = s.uniform(r.Low, r.High)
			} else {
				span := math.Max(r.Width(), spec.Step) * 0.18 * scale
				v = cur + s.uniform(-span, span)
			}
			v = spec.Quantize(v)
		}
		_ = p.SetValue(spec.Name, v)
		changed = true
	}

	if !changed {
		spec := s.space[s.rng.IntN(len(s.space))]
		_ = p.SetValue(spec.Name, s.draw(spec, b, false))
	}
	s.space.Repair(&p)
	return p
}

// crossover takes each dimension from a or b with equal odds. Anything
// outside the space comes from a.
func (s *sampler) crossover(a, b strategy.Params) strategy.Params {
	p := a
	for _, spec := range s.space {
		if s.chance(0.5) {
			continue
		}
		v, _ := b.Value(spec.Name)
		_ = p.SetValue(spec.Name, v)
	}
	s.space.Repair(&p)
	return p
}

// parent picks from a best-first pool with a u² bias toward the top.
func (s *sampler) parent(pool []Trial) Trial {
	u := s.rng.Float64()
	i := int(math.Floor(u * u * float64(len(pool))))
	return pool[min(i, len(pool)-1)]
}
