package sim

import (
	"math"

	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

// stopFill reports whether a pending stop trades inside bar b and at what
// price before slippage. The bar is mid prices; half is half the spread.
// Buy stops trigger on the ask high and fill at the worse of the ask open
// and the stop. Sell stops mirror that on the bid side.
func stopFill(p *Position, b market.Bar, half float64) (float64, bool) {
	switch p.Type {
	case strategy.BuyStop:
		if b.High+half >= p.OpenPrice {
			return math.Max(b.Open+half, p.OpenPrice), true
		}
	case strategy.SellStop:
		if b.Low-half <= p.OpenPrice {
			return math.Min(b.Open-half, p.OpenPrice), true
		}
	}
	return 0, false
}
