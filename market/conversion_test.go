package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteToAccount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sym     string
		account string
		px      float64
		cross   float64
		want    float64
		wantErr bool
	}{
		{"quote equals account", "EUR_USD", "USD", 1.1, 0, 1.0, false},
		{"base equals account", "USD_CHF", "USD", 0.8, 0, 1.25, false},
		{"base equals account bad price", "USD_JPY", "USD", 0, 0, 0, true},
		{"cross with rate", "AUD_NZD", "USD", 1.08, 0.6, 0.6, false},
		{"cross without rate", "AUD_NZD", "USD", 1.08, 0, 0, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			meta, err := Lookup(tt.sym)
			require.NoError(t, err)

			got, err := QuoteToAccount(meta, tt.account, tt.px, tt.cross)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestLookupNormalizesSymbols(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"AUDNZD", "audnzd", "AUD/NZD", "aud_nzd", " AUD-NZD "} {
		meta, err := Lookup(s)
		require.NoError(t, err, s)
		assert.Equal(t, "AUD_NZD", meta.Name)
	}

	_, err := Lookup("NOPE")
	assert.Error(t, err)
}

func TestInstrumentUnits(t *testing.T) {
	t.Parallel()

	eu := Instruments["EUR_USD"]
	assert.InDelta(t, 0.0001, eu.PipSize(), 1e-15)
	assert.InDelta(t, 0.00001, eu.Point(), 1e-15)
	assert.InDelta(t, 10.0, eu.PointsPerPip(), 1e-9)
	assert.Equal(t, 1.23457, eu.Round(1.234567))
	assert.Equal(t, "eurusd", eu.Ticker())

	uj := Instruments["USD_JPY"]
	assert.InDelta(t, 0.01, uj.PipSize(), 1e-15)
	assert.InDelta(t, 0.001, uj.Point(), 1e-15)
}

func TestBarValid(t *testing.T) {
	t.Parallel()

	assert.True(t, Bar{Open: 1, High: 1.2, Low: 0.9, Close: 1.1}.Valid())
	assert.False(t, Bar{Open: 1, High: 0.9, Low: 1.2, Close: 1.1}.Valid())
	assert.False(t, Bar{Open: 1.3, High: 1.2, Low: 0.9, Close: 1.1}.Valid())
	assert.False(t, Bar{Open: 0, High: 1.2, Low: 0, Close: 1.1}.Valid())
	assert.InDelta(t, 0.3, Bar{High: 1.2, Low: 0.9}.Range(), 1e-12)
}
