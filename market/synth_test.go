package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticIsValidAndReproducible(t *testing.T) {
	t.Parallel()

	meta := Instruments["USD_CHF"]
	o := SynthOptions{Start: t0, Bars: 2000, Price: 0.9, VolPips: 4, Seed: 11}

	a := Synthetic(meta, o)
	b := Synthetic(meta, o)
	require.Len(t, a, 2000)
	assert.Equal(t, a, b)

	for i, bar := range a {
		require.True(t, bar.Valid(), "bar %d: %+v", i, bar)
		if i > 0 {
			assert.Equal(t, int64(5*time.Minute/time.Millisecond), bar.Timestamp-a[i-1].Timestamp)
			assert.Equal(t, a[i-1].Close, bar.Open)
		}
	}

	o.Seed = 12
	assert.NotEqual(t, a, Synthetic(meta, o))
}

func TestSyntheticSkipsWeekends(t *testing.T) {
	t.Parallel()

	fri := time.Date(2024, 1, 5, 23, 50, 0, 0, time.UTC)
	bars := Synthetic(Instruments["EUR_USD"], SynthOptions{Start: fri, Bars: 3, Price: 1.1, Seed: 1, SkipWeekends: true})
	require.Len(t, bars, 3)
	assert.Equal(t, time.Friday, bars[1].Time().Weekday())
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), bars[2].Time())
}
