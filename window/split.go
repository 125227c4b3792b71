// Package window cuts a bar history into fixed-length windows, runs the
// strategy on each window with a fresh account and folds the per-window
// results into the aggregates the optimizer scores.
package window

import (
	"time"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
)

// Year is the nominal window length of one "year" window.
const Year = 365 * 24 * time.Hour

// Window is one contiguous slice of the history. Start and End are the
// nominal bounds in ms; Bars holds the bars with Start <= ts < End.
type Window struct {
	Index int // 1-based
	Start int64
	End   int64
	Bars  []market.Bar
}

func (w Window) StartTime() time.Time { return time.UnixMilli(w.Start).UTC() }
func (w Window) EndTime() time.Time   { return time.UnixMilli(w.End).UTC() }

// Split cuts bars into at most count windows of span each, starting at
// the first bar. It stops early at the first window without bars.
func Split(bars []market.Bar, count int, span time.Duration) []Window {
	if len(bars) == 0 || count <= 0 || span <= 0 {
		return nil
	}
	out := make([]Window, 0, count)
	start := bars[0].Timestamp
	i := 0
	for len(out) < count {
		end := start + span.Milliseconds()
		j := i
		for j < len(bars) && bars[j].Timestamp < end {
			j++
		}
		if j == i {
			break
		}
		out = append(out, Window{
			Index: len(out) + 1,
			Start: start,
			End:   end,
			Bars:  bars[i:j],
		})
		i = j
		start = end
	}
	return out
}

// SplitYears is Split with span = years × 365 days that fails with a
// DataError when the history does not reach count windows.
func SplitYears(bars []market.Bar, count, years int) ([]Window, error) {
	if count < 1 {
		return nil, errs.Param("years", "must be at least 1")
	}
	if years < 1 {
		return nil, errs.Param("window_years", "must be at least 1")
	}
	ws := Split(bars, count, time.Duration(years)*Year)
	if len(ws) < count {
		return nil, errs.Data("split", "", "insufficient history: %d bars cover %d of %d windows", len(bars), len(ws), count)
	}
	return ws, nil
}
