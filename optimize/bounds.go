package optimize

import (
	"maps"
	"math"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/pkg/stats"
)

// Range is a closed numeric interval.
type Range struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

func (r Range) Width() float64 { return r.High - r.Low }

// Bounds is the current sampling region: a range per numeric dimension
// and a probability per bool dimension.
type Bounds struct {
	Numeric  map[string]Range   `json:"numeric"`
	BoolProb map[string]float64 `json:"bool_probs"`
}

// BaseBounds is the full region of s.
func BaseBounds(s Space) Bounds {
	b := Bounds{Numeric: map[string]Range{}, BoolProb: map[string]float64{}}
	for _, spec := range s {
		if spec.Kind == KindBool {
			b.BoolProb[spec.Name] = spec.PTrue
			continue
		}
		b.Numeric[spec.Name] = Range{Low: spec.Low, High: spec.High}
	}
	return b
}

func (b Bounds) Clone() Bounds {
	out := Bounds{Numeric: maps.Clone(b.Numeric), BoolProb: maps.Clone(b.BoolProb)}
	if out.Numeric == nil {
		out.Numeric = map[string]Range{}
	}
	if out.BoolProb == nil {
		out.BoolProb = map[string]float64{}
	}
	return out
}

func (b Bounds) rangeOf(spec Spec) Range {
	if r, ok := b.Numeric[spec.Name]; ok {
		return r
	}
	return Range{Low: spec.Low, High: spec.High}
}

func (b Bounds) probOf(spec Spec) float64 {
	if p, ok := b.BoolProb[spec.Name]; ok {
		return p
	}
	return spec.PTrue
}

// Narrow replaces the ranges of the named dimensions. Each override must
// lie inside the dimension's full range.
func (b Bounds) Narrow(s Space, over map[string]Range) (Bounds, error) {
	out := b.Clone()
	for name, r := range over {
		spec, ok := s.Lookup(name)
		if !ok {
			return Bounds{}, errs.Param("bounds", "%q is not a searched dimension", name)
		}
		if spec.Kind == KindBool {
			return Bounds{}, errs.Param("bounds", "%s is a bool dimension", name)
		}
		if r.Low > r.High || r.Low < spec.Low || r.High > spec.High {
			return Bounds{}, errs.Param("bounds", "%s: [%v, %v] is not inside [%v, %v]",
				name, r.Low, r.High, spec.Low, spec.High)
		}
		out.Numeric[name] = r
	}
	return out, nil
}

// Refine derives the next region from the elite trials (best first): the
// span of the top ten values padded by the larger of a quarter of that
// span and 8% of the base width, at least two grid steps wide, then
// intersected with prev so a range never grows. Bool probabilities
// become the elite's share of true values, kept inside [0.1, 0.9].
func Refine(s Space, base, prev Bounds, elite []Trial) Bounds {
	if len(elite) == 0 {
		return prev.Clone()
	}
	top := elite[:min(len(elite), 10)]
	out := prev.Clone()

	for _, spec := range s {
		vals := stats.Map(top, func(t Trial) float64 {
			v, _ := t.Params.Value(spec.Name)
			return v
		})

		if spec.Kind == KindBool {
			n := stats.Count(vals, func(v float64) bool { return v >= 0.5 })
			out.BoolProb[spec.Name] = stats.Clamp(float64(n)/float64(len(top)), 0.1, 0.9)
			continue
		}

		lo, _ := stats.Min(vals)
		hi, _ := stats.Max(vals)
		br := base.rangeOf(spec)
		minBase := spec.Step
		if spec.Kind == KindInt {
			minBase = 1
		}
		baseW := math.Max(br.Width(), minBase)
		w := math.Max(hi-lo, spec.Step)
		pad := math.Max(w*0.25, baseW*0.08)

		nl := stats.Clamp(lo-pad, br.Low, br.High)
		nh := stats.Clamp(hi+pad, br.Low, br.High)
		if nh-nl < 2*spec.Step {
			mid := (nl + nh) / 2
			nl = stats.Clamp(mid-spec.Step, br.Low, br.High)
			nh = stats.Clamp(mid+spec.Step, br.Low, br.High)
		}

		pr := prev.rangeOf(spec)
		nl, nh = math.Max(nl, pr.Low), math.Min(nh, pr.High)
		if nl > nh {
			// The elite left the previous region (seeds can); keep it.
			continue
		}
		out.Numeric[spec.Name] = Range{Low: nl, High: nh}
	}
	return out
}
