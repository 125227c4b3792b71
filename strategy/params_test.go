package strategy

import (
	"encoding/json"
	"testing"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Defaults().Validate())
	require.NoError(t, Preserved().Validate())
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field string
		mut   func(*Params)
	}{
		{"totals", "totals", func(p *Params) { p.Totals = 0 }},
		{"lot", "lot", func(p *Params) { p.Lot = 0 }},
		{"max_lot below lot", "max_lot", func(p *Params) { p.MaxLot = p.Lot / 2 }},
		{"step", "step", func(p *Params) { p.Step = 0 }},
		{"open mode", "open_mode", func(p *Params) { p.OpenMode = 7 }},
		{"digits", "digits_lot", func(p *Params) { p.DigitsLot = 12 }},
		{"clock", "ea_stop_time", func(p *Params) { p.EAStopTime = "noon" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Preserved()
			tt.mut(&p)
			err := p.Validate()
			require.Error(t, err)
			var pe *errs.ParameterError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
		})
	}
}

func TestValueSetValue(t *testing.T) {
	t.Parallel()

	p := Preserved()

	v, err := p.Value("step")
	require.NoError(t, err)
	assert.Equal(t, 160.0, v)

	require.NoError(t, p.SetValue("step", 212.6))
	assert.Equal(t, 213, p.Step)

	require.NoError(t, p.SetValue("k_lot", 1.2))
	assert.Equal(t, 1.2, p.KLot)

	require.NoError(t, p.SetValue("homeopathy", 1))
	assert.True(t, p.Homeopathy)
	v, _ = p.Value("homeopathy")
	assert.Equal(t, 1.0, v)

	_, err = p.Value("nope")
	assert.True(t, errs.IsParameter(err))
	assert.True(t, errs.IsParameter(p.SetValue("nope", 1)))

	k, ok := Kind("lot")
	assert.True(t, ok)
	assert.Equal(t, "float", k)
	k, _ = Kind("totals")
	assert.Equal(t, "int", k)
	assert.Contains(t, Names(), "two_min_distance")
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a, b := Preserved(), Preserved()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Lot = 0.028
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestParamsEncoding(t *testing.T) {
	t.Parallel()

	p := Preserved()

	js, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(js), `"k_lot":1.085`)

	var back Params
	require.NoError(t, yaml.Unmarshal([]byte("step: 200\nlot: 0.05\nk_lot: 1.2\nopen_mode: 3\n"), &back))
	assert.Equal(t, 200, back.Step)
	assert.Equal(t, OpenAlways, back.OpenMode)
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
		err  bool
	}{
		{"00:00", 0, false},
		{"24:00", 86399, false},
		{" 08:30 ", 8*3600 + 30*60, false},
		{"23:59:30", 86370, false},
		{"25:70", 23*3600 + 59*60, false},
		{"8", 0, true},
		{"aa:bb", 0, true},
	}
	for _, tt := range tests {
		got, err := parseClock(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
