package sim

import "math"

// UnrealizedPL is the P&L of units (negative for shorts) opened at entry
// and marked at mark, converted to account currency.
func UnrealizedPL(units, entry, mark, quoteToAccount float64) float64 {
	plQuote := units * (mark - entry)
	return plQuote * quoteToAccount
}

// TradeMargin is the margin held by units at price: the account-currency
// notional over leverage.
func TradeMargin(units, price, quoteToAccount float64, leverage int) float64 {
	notionalAccount := math.Abs(units) * price * quoteToAccount
	return notionalAccount / float64(leverage)
}
