package backtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

func TestLoadParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		file     string
		body     string
		wantStep int
		wantLot  float64
		wantErr  bool
	}{
		{
			name:     "optimize result",
			file:     "result.json",
			body:     `{"objective":"x","selected_result":{"score":1,"params":{"step":210,"lot":0.05}},"params":{"step":1}}`,
			wantStep: 210,
			wantLot:  0.05,
		},
		{
			name:     "null selection falls back to params",
			file:     "result.json",
			body:     `{"selected_result":null,"params":{"step":180}}`,
			wantStep: 180,
			wantLot:  0.027,
		},
		{
			name:     "bare object",
			file:     "p.json",
			body:     `{"two_step":300,"lot":0.02}`,
			wantStep: 160,
			wantLot:  0.02,
		},
		{
			name:     "yaml",
			file:     "p.yaml",
			body:     "step: 140\nlot: 0.03\n",
			wantStep: 140,
			wantLot:  0.03,
		},
		{
			name:    "invalid set",
			file:    "p.json",
			body:    `{"lot":-1}`,
			wantErr: true,
		},
		{
			name:    "not json",
			file:    "p.json",
			body:    `step=1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))

			p, err := LoadParams(path, strategy.Preserved())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsData(err) || errs.IsParameter(err), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStep, p.Step)
			assert.InDelta(t, tt.wantLot, p.Lot, 1e-12)
			// Unset fields keep the base values.
			assert.Equal(t, 60, p.Totals)
		})
	}
}

func TestLoadParamsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadParams(filepath.Join(t.TempDir(), "nope.json"), strategy.Preserved())
	require.Error(t, err)
	assert.True(t, errs.IsData(err))
}
