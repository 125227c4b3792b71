package market

import (
	"math"
	"math/rand/v2"
	"time"
)

// SynthOptions shapes a generated random-walk series.
type SynthOptions struct {
	Start     time.Time
	Bars      int
	Timeframe time.Duration // default M5
	Price     float64       // first open
	VolPips   float64       // stddev of one bar's close-to-close move
	Seed      uint64
	// SkipWeekends leaves out Saturday and Sunday bars like real FX feeds.
	SkipWeekends bool
}

// Synthetic builds a reproducible random-walk bar series for meta. It is
// used for smoke runs and tests where no downloaded history is at hand.
func Synthetic(meta InstrumentMeta, o SynthOptions) []Bar {
	tf := o.Timeframe
	if tf <= 0 {
		tf = DefaultTimeframe
	}
	vol := o.VolPips
	if vol <= 0 {
		vol = 3
	}
	pip := meta.PipSize()
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x5851f42d4c957f2d))

	out := make([]Bar, 0, o.Bars)
	px := o.Price
	t := o.Start.UTC()
	for len(out) < o.Bars {
		if o.SkipWeekends && (t.Weekday() == time.Saturday || t.Weekday() == time.Sunday) {
			t = t.Add(tf)
			continue
		}
		open := meta.Round(px)
		closePx := meta.Round(math.Max(pip, open+rng.NormFloat64()*vol*pip))
		high := meta.Round(math.Max(open, closePx) + math.Abs(rng.NormFloat64())*vol*pip/2)
		low := meta.Round(math.Max(pip/10, math.Min(open, closePx)-math.Abs(rng.NormFloat64())*vol*pip/2))
		out = append(out, Bar{
			Timestamp: t.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
		})
		px = closePx
		t = t.Add(tf)
	}
	return out
}
