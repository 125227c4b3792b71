package market

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monday 2024-01-01 00:00 UTC
var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func synthBars(start time.Time, n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		px := 1.1 + float64(i%7)*0.0001
		bars[i] = Bar{
			Timestamp: start.Add(time.Duration(i) * DefaultTimeframe).UnixMilli(),
			Open:      px,
			High:      px + 0.0003,
			Low:       px - 0.0002,
			Close:     px + 0.0001,
		}
	}
	return bars
}

func csvOf(t *testing.T, bars []Bar) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, bars, 5))
	return buf.String()
}

func TestReadCSVRoundTrip(t *testing.T) {
	t.Parallel()

	bars := synthBars(t0, 50)
	bs, err := ReadCSV(strings.NewReader(csvOf(t, bars)), LoadOptions{GapPolicy: GapStrict})
	require.NoError(t, err)
	require.Len(t, bs.Bars, 50)
	assert.Equal(t, bars[0].Timestamp, bs.Bars[0].Timestamp)
	assert.InDelta(t, bars[49].Close, bs.Bars[49].Close, 1e-9)
	assert.Empty(t, bs.Gaps)
	assert.Equal(t, t0, bs.First())
}

func TestReadCSVRejects(t *testing.T) {
	t.Parallel()

	good := csvOf(t, synthBars(t0, 3))
	lines := strings.Split(strings.TrimSpace(good), "\n")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "timestamp,open,high,low,close\n", "no bars"},
		{"bad number", lines[0] + "\n" + lines[1] + "\nabc,1,1,1,1\n", "line 3"},
		{"short row", lines[0] + "\n" + lines[1] + "\n1,2,3\n", "want 5 fields"},
		{"extra column", lines[0] + "\n" + lines[1] + ",42\n", "want 5 fields, got 6"},
		{"duplicate", lines[0] + "\n" + lines[1] + "\n" + lines[1] + "\n", "duplicate timestamp"},
		{"out of order", lines[0] + "\n" + lines[2] + "\n" + lines[1] + "\n", "before"},
		{"bad ohlc", lines[0] + "\n" + fmt.Sprintf("%d,1.1,1.0,1.2,1.1\n", t0.UnixMilli()), "inconsistent"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadCSV(strings.NewReader(tt.body), LoadOptions{})
			require.Error(t, err)
			assert.True(t, errs.IsData(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGapClassificationAndPolicy(t *testing.T) {
	t.Parallel()

	// friday 2024-01-05 21:55, weekend hole to sunday 22:00
	fri := time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC)
	bars := synthBars(fri, 12)
	sun := synthBars(time.Date(2024, 1, 7, 22, 0, 0, 0, time.UTC), 12)
	bars = append(bars, sun...)

	body := csvOf(t, bars)

	bs, err := ReadCSV(strings.NewReader(body), LoadOptions{GapPolicy: GapAllowWeekend})
	require.NoError(t, err)
	require.Len(t, bs.Gaps, 1)
	assert.Equal(t, GapWeekend, bs.Gaps[0].Kind)
	assert.Equal(t, 12, bs.Gaps[0].BeforeIdx)

	_, err = ReadCSV(strings.NewReader(body), LoadOptions{GapPolicy: GapStrict})
	require.Error(t, err)
	assert.True(t, errs.IsData(err))

	// tuesday hole of 30 minutes is suspicious
	tue := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	holey := append(synthBars(tue, 5), synthBars(tue.Add(55*time.Minute), 5)...)
	body = csvOf(t, holey)

	bs, err = ReadCSV(strings.NewReader(body), LoadOptions{})
	require.NoError(t, err, "report policy never rejects")
	require.Len(t, bs.Gaps, 1)
	assert.Equal(t, GapSuspicious, bs.Gaps[0].Kind)
	assert.Equal(t, 6, bs.Gaps[0].Missing)

	_, err = ReadCSV(strings.NewReader(body), LoadOptions{GapPolicy: GapAllowWeekend})
	assert.Error(t, err)

	s := bs.Stats()
	assert.Equal(t, 10, s.PresentIntervals)
	assert.Equal(t, 6, s.MissingIntervals)
	assert.Equal(t, 16, s.TotalIntervals)
	assert.Equal(t, 1, s.SuspiciousGaps)
}

// barsAt builds one flat bar per timestamp.
func barsAt(ts ...time.Time) []Bar {
	out := make([]Bar, len(ts))
	for i, tm := range ts {
		out[i] = Bar{Timestamp: tm.UnixMilli(), Open: 1.1, High: 1.1003, Low: 1.0998, Close: 1.1001}
	}
	return out
}

func TestReadCSVGapPolicies(t *testing.T) {
	t.Parallel()

	tue := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	fri := time.Date(2024, 1, 5, 21, 50, 0, 0, time.UTC)
	sun := time.Date(2024, 1, 7, 22, 0, 0, 0, time.UTC)
	m := time.Minute

	tests := []struct {
		name    string
		bars    []Bar
		gaps    int
		kind    GapKind
		accept  map[GapPolicy]bool
		wantErr string
	}{
		{
			name:   "contiguous",
			bars:   barsAt(tue, tue.Add(5*m), tue.Add(10*m)),
			accept: map[GapPolicy]bool{"": true, GapReport: true, GapAllowWeekend: true, GapStrict: true},
		},
		{
			name:   "one missing bar",
			bars:   barsAt(tue, tue.Add(5*m), tue.Add(15*m)),
			gaps:   1,
			kind:   GapMinor,
			accept: map[GapPolicy]bool{"": true, GapReport: true, GapAllowWeekend: true, GapStrict: false},
		},
		{
			name:   "weekday two hour hole",
			bars:   barsAt(tue, tue.Add(5*m), tue.Add(125*m)),
			gaps:   1,
			kind:   GapSuspicious,
			accept: map[GapPolicy]bool{"": true, GapReport: true, GapAllowWeekend: false, GapStrict: false},
		},
		{
			name:   "weekend close",
			bars:   barsAt(fri, fri.Add(5*m), sun, sun.Add(5*m)),
			gaps:   1,
			kind:   GapWeekend,
			accept: map[GapPolicy]bool{"": true, GapReport: true, GapAllowWeekend: true, GapStrict: false},
		},
		{
			name:    "off grid spacing",
			bars:    barsAt(tue, tue.Add(3*m), tue.Add(10*m)),
			accept:  map[GapPolicy]bool{"": false, GapReport: false, GapAllowWeekend: false, GapStrict: false},
			wantErr: "off the M5 grid",
		},
		{
			name:    "off grid after a hole",
			bars:    barsAt(tue, tue.Add(5*m), tue.Add(37*m)),
			accept:  map[GapPolicy]bool{"": false, GapReport: false, GapAllowWeekend: false, GapStrict: false},
			wantErr: "line 4",
		},
	}

	for _, tt := range tests {
		body := csvOf(t, tt.bars)
		for policy, ok := range tt.accept {
			t.Run(fmt.Sprintf("%s/%s", tt.name, policy), func(t *testing.T) {
				t.Parallel()
				bs, err := ReadCSV(strings.NewReader(body), LoadOptions{GapPolicy: policy})
				if !ok {
					require.Error(t, err)
					assert.True(t, errs.IsData(err))
					if tt.wantErr != "" {
						assert.Contains(t, err.Error(), tt.wantErr)
					}
					return
				}
				require.NoError(t, err)
				assert.Len(t, bs.Bars, len(tt.bars))
				require.Len(t, bs.Gaps, tt.gaps)
				if tt.gaps > 0 {
					assert.Equal(t, tt.kind, bs.Gaps[0].Kind)
				}
			})
		}
	}
}

func TestClassifyGap(t *testing.T) {
	t.Parallel()

	wed := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC).UnixMilli()
	sat := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC).UnixMilli()

	assert.Equal(t, GapMinor, classifyGap(wed, 5*time.Minute))
	assert.Equal(t, GapSuspicious, classifyGap(wed, 10*time.Minute))
	assert.Equal(t, GapSuspicious, classifyGap(wed, 30*time.Hour))
	assert.Equal(t, GapWeekend, classifyGap(sat, 40*time.Hour))
}

func TestLoadCSVFileAndBetween(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	bars := synthBars(t0, 288)
	require.NoError(t, WriteCSVFile(path, bars, 5))

	bs, err := LoadCSV(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, path, bs.Path)

	mid := bs.Between(t0.Add(time.Hour), t0.Add(2*time.Hour))
	assert.Len(t, mid, 12)
	assert.Equal(t, t0.Add(time.Hour), mid[0].Time())

	var out bytes.Buffer
	bs.PrintStats(&out)
	assert.Contains(t, out.String(), "M5 Bar Stats")
	assert.Contains(t, out.String(), "Present Intervals: 288")

	_, err = LoadCSV(filepath.Join(dir, "missing.csv"), LoadOptions{})
	assert.True(t, errs.IsData(err))
}

func TestParseGapPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseGapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, GapReport, p)

	p, err = ParseGapPolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, GapStrict, p)

	_, err = ParseGapPolicy("lenient")
	assert.True(t, errs.IsParameter(err))
}

func TestTimeframe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "M5", TimeframeLabel(5*time.Minute))
	assert.Equal(t, "H1", TimeframeLabel(time.Hour))
	assert.Equal(t, "D1", TimeframeLabel(24*time.Hour))
	assert.Equal(t, "W1", TimeframeLabel(7*24*time.Hour))

	for _, s := range []string{"M1", "M5", "H4", "D1", "W1"} {
		d, err := ParseTimeframe(s)
		require.NoError(t, err)
		assert.Equal(t, s, TimeframeLabel(d))
	}
	_, err := ParseTimeframe("X9")
	assert.Error(t, err)
}
