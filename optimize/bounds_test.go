package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

func TestNarrow(t *testing.T) {
	t.Parallel()

	s := FullSpace()
	base := BaseBounds(s)

	b, err := base.Narrow(s, map[string]Range{"step": {Low: 100, High: 200}})
	require.NoError(t, err)
	assert.Equal(t, Range{Low: 100, High: 200}, b.Numeric["step"])
	assert.Equal(t, Range{Low: 70, High: 340}, base.Numeric["step"], "base is not modified")

	tests := []struct {
		name string
		over map[string]Range
	}{
		{"unknown", map[string]Range{"grid": {Low: 1, High: 2}}},
		{"bool", map[string]Range{"homeopathy": {Low: 0, High: 1}}},
		{"outside", map[string]Range{"step": {Low: 50, High: 200}}},
		{"inverted", map[string]Range{"lot": {Low: 0.05, High: 0.01}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := base.Narrow(s, tt.over)
			require.Error(t, err)
			assert.True(t, errs.IsParameter(err))
		})
	}
}

func trialWith(score float64, p strategy.Params) Trial {
	return Trial{Score: score, Params: p, Fingerprint: p.Fingerprint()}
}

func TestRefineSingleValue(t *testing.T) {
	t.Parallel()

	s := DefaultSpace()
	base := BaseBounds(s)
	p := strategy.Preserved()
	p.Step, p.Lot = 200, 0.05

	got := Refine(s, base, base, []Trial{trialWith(1, p), trialWith(0, p)})

	// Pad is 8% of the base width: 0.08 * 270 and 0.08 * 0.095.
	assert.InDelta(t, 178.4, got.Numeric["step"].Low, 1e-9)
	assert.InDelta(t, 221.6, got.Numeric["step"].High, 1e-9)
	assert.InDelta(t, 0.0424, got.Numeric["lot"].Low, 1e-9)
	assert.InDelta(t, 0.0576, got.Numeric["lot"].High, 1e-9)
	for _, spec := range s {
		assert.GreaterOrEqual(t, got.Numeric[spec.Name].Width(), 2*spec.Step)
	}

	assert.Equal(t, base, Refine(s, base, base, nil))
}

func TestRefineBoolProbabilities(t *testing.T) {
	t.Parallel()

	s, err := FullSpace().Select([]string{"homeopathy", "profit_by_count"})
	require.NoError(t, err)
	base := BaseBounds(s)

	on := strategy.Preserved()
	on.Homeopathy, on.ProfitByCount = true, true
	off := strategy.Preserved()
	off.Homeopathy, off.ProfitByCount = true, false

	got := Refine(s, base, base, []Trial{trialWith(3, on), trialWith(2, off), trialWith(1, off), trialWith(0, off)})
	assert.InDelta(t, 0.9, got.BoolProb["homeopathy"], 1e-9)
	assert.InDelta(t, 0.25, got.BoolProb["profit_by_count"], 1e-9)
}

func TestRefineNeverGrows(t *testing.T) {
	t.Parallel()

	s := FullSpace()
	base := BaseBounds(s)
	sm := newSampler(11, s)

	prev := base
	for round := range 25 {
		// Half the elite comes from the current region, half from anywhere,
		// so some of it lies outside prev.
		var elite []Trial
		for i := range 12 {
			b := prev
			if i%2 == 1 {
				b = base
			}
			elite = pushTop(elite, trialWith(sm.uniform(0, 100), sm.sample(strategy.Preserved(), b)), topAllSize)
		}
		next := Refine(s, base, prev, elite)
		for _, spec := range s {
			if spec.Kind == KindBool {
				p := next.BoolProb[spec.Name]
				assert.True(t, p >= 0.1 && p <= 0.9, "round %d %s: %v", round, spec.Name, p)
				continue
			}
			pr, nr := prev.rangeOf(spec), next.rangeOf(spec)
			assert.GreaterOrEqual(t, nr.Low, pr.Low, "round %d %s", round, spec.Name)
			assert.LessOrEqual(t, nr.High, pr.High, "round %d %s", round, spec.Name)
			assert.LessOrEqual(t, nr.Low, nr.High)
		}
		prev = next
	}
}
