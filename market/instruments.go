package market

import (
	"fmt"
	"math"
	"strings"
)

type InstrumentMeta struct {
	Name             string
	BaseCurrency     string
	QuoteCurrency    string
	PipLocation      int // pip = 10^PipLocation
	Digits           int // quote precision; point = 10^-Digits
	ContractSize     float64
	MinimumTradeSize float64
}

// PipSize is one pip in price units, e.g. EURUSD 0.0001, USDJPY 0.01.
func (m InstrumentMeta) PipSize() float64 {
	return math.Pow10(m.PipLocation)
}

// Point is the smallest quoted increment (1/10 pip on fractional quotes).
func (m InstrumentMeta) Point() float64 {
	return math.Pow10(-m.Digits)
}

// PointsPerPip is 10 for fractional-pip quotes.
func (m InstrumentMeta) PointsPerPip() float64 {
	return m.PipSize() / m.Point()
}

// Round snaps a price to the instrument's quote precision.
func (m InstrumentMeta) Round(px float64) float64 {
	p := math.Pow10(m.Digits)
	return math.Round(px*p) / p
}

// Ticker is the lower-case compact symbol used in cache file names.
func (m InstrumentMeta) Ticker() string {
	return strings.ToLower(m.BaseCurrency + m.QuoteCurrency)
}

func fx(base, quote string, pipLoc, digits int) InstrumentMeta {
	return InstrumentMeta{
		Name:             base + "_" + quote,
		BaseCurrency:     base,
		QuoteCurrency:    quote,
		PipLocation:      pipLoc,
		Digits:           digits,
		ContractSize:     100_000,
		MinimumTradeSize: 0.01,
	}
}

var Instruments = map[string]InstrumentMeta{
	"EUR_USD": fx("EUR", "USD", -4, 5),
	"GBP_USD": fx("GBP", "USD", -4, 5),
	"AUD_USD": fx("AUD", "USD", -4, 5),
	"USD_CHF": fx("USD", "CHF", -4, 5),
	"USD_CAD": fx("USD", "CAD", -4, 5),
	"USD_JPY": fx("USD", "JPY", -2, 3),
	"AUD_NZD": fx("AUD", "NZD", -4, 5),
	"EUR_GBP": fx("EUR", "GBP", -4, 5),
}

// NormalizeSymbol accepts "audnzd", "AUD/NZD", "aud_nzd" and returns
// the canonical "AUD_NZD" form.
func NormalizeSymbol(sym string) string {
	s := strings.ToUpper(strings.TrimSpace(sym))
	s = strings.NewReplacer("/", "", "_", "", "-", "").Replace(s)
	if len(s) != 6 {
		return s
	}
	return s[:3] + "_" + s[3:]
}

// Lookup finds instrument metadata by any accepted symbol spelling.
func Lookup(sym string) (InstrumentMeta, error) {
	name := NormalizeSymbol(sym)
	meta, ok := Instruments[name]
	if !ok {
		return InstrumentMeta{}, fmt.Errorf("unknown instrument %s", sym)
	}
	return meta, nil
}
