package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/report"
)

// history writes one year of synthetic USD_CHF M5 bars into dir under the
// merged-file name discovery looks for and returns its path.
func history(t *testing.T, dir string) string {
	t.Helper()
	meta, err := market.Lookup("USDCHF")
	require.NoError(t, err)

	from, to := market.HistoryRange(time.Now().UTC(), 1)
	bars := market.Synthetic(meta, market.SynthOptions{
		Start:   from.Add(time.Hour),
		Bars:    365*288 - 24,
		Price:   0.91,
		VolPips: 2,
		Seed:    7,
	})
	path := filepath.Join(dir, market.MergedFileName(meta, from, to))
	require.NoError(t, market.WriteCSVFile(path, bars, meta.Digits))
	return path
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append(args, "--env-file", filepath.Join(t.TempDir(), "none.env"), "--log-level", "warn")
	code := Run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestOptimizeBacktestJournal(t *testing.T) {
	dir := t.TempDir()
	history(t, dir)
	out := filepath.Join(dir, "result.json")
	db := filepath.Join(dir, "runs.sqlite")

	code, stdout, stderr := run(t, "optimize",
		"--symbol", "USDCHF", "--data-dir", dir, "--auto-fetch=false",
		"--years", "1", "--trials", "3", "--seed", "5", "--workers", "2",
		"--mode", "no_blowup", "--out", out, "--db", db, "--xlsx", filepath.Join(dir, "run.xlsx"))
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "OPTIMIZE")
	assert.Contains(t, stdout, "Saved: "+out)
	assert.FileExists(t, filepath.Join(dir, "run.xlsx"))

	var rep report.OptimizeReport
	require.NoError(t, report.ReadJSON(out, &rep))
	assert.Equal(t, "USDCHF", rep.Symbol)
	assert.Equal(t, 3, rep.Evaluated+rep.Skipped)
	assert.Equal(t, uint64(5), rep.Seed)
	assert.NotEmpty(t, rep.RunID)
	require.NotNil(t, rep.SelectedResult)
	assert.Len(t, rep.SelectedResult.Years, 1)

	code, stdout, stderr = run(t, "journal", "run", rep.RunID, "--db", db)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, rep.RunID)
	assert.Contains(t, stdout, "TRIALS")

	org := filepath.Join(dir, "bt.org")
	code, stdout, stderr = run(t, "backtest",
		"--symbol", "USDCHF", "--data-dir", dir, "--auto-fetch=false", "--years", "1",
		"--params", out, "--org", org, "--json", filepath.Join(dir, "bt.json"))
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "BACKTEST")
	assert.FileExists(t, org)
	assert.FileExists(t, filepath.Join(dir, "bt.json"))

	code, stdout, stderr = run(t, "backtest", "--data-file", filepath.Join(dir, "bt.json"))
	assert.Equal(t, ExitInput, code, stdout+stderr)
}

func TestBacktestByWindow(t *testing.T) {
	dir := t.TempDir()
	path := history(t, dir)

	code, stdout, stderr := run(t, "backtest", "--data-file", path, "--years", "1", "--by-window", "--strategy", "noop")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "BY WINDOW")
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"zero trials", []string{"optimize", "--trials", "0", "--data-file", "x.csv"}, ExitInput},
		{"unknown mode", []string{"optimize", "--mode", "yolo", "--data-file", "x.csv"}, ExitInput},
		{"missing data file", []string{"optimize", "--data-file", filepath.Join(dir, "missing.csv")}, ExitInput},
		{"nothing to discover", []string{"optimize", "--data-dir", dir, "--auto-fetch=false"}, ExitInput},
		{"unknown command", []string{"frobnicate"}, ExitError},
		{"version", []string{"version"}, ExitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, tt.args...)
			assert.Equal(t, tt.want, code, stderr)
		})
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitInput, ExitCode(errs.Param("trials", "must be at least 1")))
	assert.Equal(t, ExitInput, ExitCode(errs.Data("parse", "x.csv", "line 3: bad")))
	assert.Equal(t, ExitError, ExitCode(errors.New("boom")))
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amazing.yaml")

	code, stdout, stderr := run(t, "config", "init", "-o", path)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, path)

	code, stdout, stderr = run(t, "config", "validate", "-f", path)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "Configuration valid")
	assert.Contains(t, stdout, "adaptive/drawdown, 120 trials, seed 20260226")

	require.NoError(t, os.WriteFile(path, []byte("optimize:\n  trials: 0\n"), 0o644))
	code, _, _ = run(t, "config", "validate", "-f", path)
	assert.Equal(t, ExitInput, code)
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("optimize:\n  trials: 0\n"), 0o644))

	// The file alone is invalid; the flag repairs it, so the run gets as
	// far as data discovery.
	code, _, stderr := run(t, "optimize", "--config", cfgPath, "--trials", "2", "--data-dir", dir, "--auto-fetch=false")
	assert.Equal(t, ExitInput, code)
	assert.Contains(t, stderr, "no merged file")

	code, _, stderr = run(t, "optimize", "--config", cfgPath, "--data-dir", dir, "--auto-fetch=false")
	assert.Equal(t, ExitInput, code)
	assert.Contains(t, stderr, "optimize.trials")
}

func TestDataSynthAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synth.csv")

	code, stdout, stderr := run(t, "data", "synth", "--symbol", "EURUSD", "--start", "2024-01-01",
		"--bars", "2000", "--price", "1.1", "--out", path)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "2000 bars")

	code, stdout, stderr = run(t, "data", "inspect", path)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "Bars: 2000")
	assert.Contains(t, stdout, "Weekend Gaps")
}
