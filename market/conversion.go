package market

import (
	"fmt"
)

// QuoteToAccount returns the multiplier that turns an amount in the
// instrument's quote currency into the account currency at price px.
// Crosses have no second price feed in a single-symbol backtest, so they
// use the caller's static crossRate (quote -> account).
func QuoteToAccount(meta InstrumentMeta, account string, px, crossRate float64) (float64, error) {
	// Case 1: quote currency == account currency (EUR_USD, GBP_USD, etc.)
	if meta.QuoteCurrency == account {
		return 1.0, nil
	}

	// Case 2: account currency is base (USD_JPY, USD_CHF, etc.)
	if meta.BaseCurrency == account {
		if px <= 0 {
			return 0, fmt.Errorf("%s: non-positive price %v", meta.Name, px)
		}
		return 1.0 / px, nil
	}

	// Case 3: cross (AUD_NZD with a USD account)
	if crossRate > 0 {
		return crossRate, nil
	}
	return 0, fmt.Errorf(
		"cross conversion %s → %s needs a quote rate",
		meta.QuoteCurrency,
		account,
	)
}
