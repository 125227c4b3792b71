package market

import (
	"time"
)

// DefaultTimeframe is the nominal interval of the price series the
// optimizer runs on.
const DefaultTimeframe = 5 * time.Minute

// Bar is one OHLC candle. Timestamp is the bar open as a millisecond epoch.
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// Range is high minus low, never negative.
func (b Bar) Range() float64 {
	if b.High < b.Low {
		return 0
	}
	return b.High - b.Low
}

// Valid reports whether the OHLC values are internally consistent.
func (b Bar) Valid() bool {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	if b.High < b.Low {
		return false
	}
	return b.Open <= b.High && b.Open >= b.Low && b.Close <= b.High && b.Close >= b.Low
}
