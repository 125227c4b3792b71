package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
)

func barAt(h int, rangePips float64) market.Bar {
	ts := time.Date(2024, 1, 3, h, 0, 0, 0, time.UTC).UnixMilli()
	return market.Bar{Timestamp: ts, Open: 0.9, High: 0.9 + rangePips*1e-4, Low: 0.9, Close: 0.9}
}

func TestDynamicCostIsSeeded(t *testing.T) {
	t.Parallel()

	a, b := NewDynamicCost(42), NewDynamicCost(42)
	other := NewDynamicCost(43)
	bar := barAt(10, 12)

	var same, diff bool = true, false
	for i := 0; i < 50; i++ {
		sa, sb, so := a.SpreadPips(bar, 1e-4), b.SpreadPips(bar, 1e-4), other.SpreadPips(bar, 1e-4)
		same = same && sa == sb
		diff = diff || sa != so
		assert.Equal(t, a.SlippagePips(bar, 1e-4, 0.3), b.SlippagePips(bar, 1e-4, 0.3))
	}
	assert.True(t, same)
	assert.True(t, diff)
}

func TestDynamicCostBounds(t *testing.T) {
	t.Parallel()

	c := NewDynamicCost(7)
	for _, h := range []int{0, 3, 8, 17, 22} {
		for _, r := range []float64{0, 5, 40, 500} {
			bar := barAt(h, r)
			s := c.SpreadPips(bar, 1e-4)
			assert.GreaterOrEqual(t, s, 0.25)
			assert.LessOrEqual(t, s, 3.0)

			for _, lots := range []float64{0.01, 1, 10} {
				sl := c.SlippagePips(bar, 1e-4, lots)
				assert.GreaterOrEqual(t, sl, 0.08)
				assert.LessOrEqual(t, sl, 2.5)
			}
		}
	}
}

func TestDynamicSpreadSessions(t *testing.T) {
	t.Parallel()

	// With a flat bar the spread is 0.55 + session + noise in [-0.08, 0.12].
	tests := []struct {
		hour    int
		session float64
	}{
		{0, 0.45},
		{1, 0.45},
		{3, 0.15},
		{6, 0},
		{15, 0},
		{18, 0.15},
		{21, 0.45},
	}
	c := NewDynamicCost(1)
	for _, tt := range tests {
		s := c.SpreadPips(barAt(tt.hour, 0), 1e-4)
		assert.GreaterOrEqual(t, s, 0.55+tt.session-0.08-1e-12, "hour %d", tt.hour)
		assert.LessOrEqual(t, s, 0.55+tt.session+0.12+1e-12, "hour %d", tt.hour)
	}
}

func TestCostSpec(t *testing.T) {
	t.Parallel()

	require.NoError(t, CostSpec{}.Validate())
	require.NoError(t, CostSpec{Model: "fixed", SpreadPips: 1.2}.Validate())
	assert.True(t, errs.IsParameter(CostSpec{Model: "fixed", SpreadPips: -1}.Validate()))
	assert.True(t, errs.IsParameter(CostSpec{Model: "tick"}.Validate()))

	assert.Equal(t, FixedCost{Spread: 1.2, Slippage: 0.3}, CostSpec{Model: "FIXED", SpreadPips: 1.2, SlippagePips: 0.3}.New(0))
	assert.IsType(t, &DynamicCost{}, CostSpec{}.New(9))
	assert.Equal(t, "dynamic", CostSpec{}.String())
}
