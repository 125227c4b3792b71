package sim

// Account is the simulated trading account. Equity, MarginUsed and
// FreeMargin are recomputed from the open positions on every bar, never
// incremented.
type Account struct {
	Currency    string  `json:"currency"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	MarginUsed  float64 `json:"margin_used"`
	FreeMargin  float64 `json:"free_margin"`
	MarginLevel float64 `json:"margin_level"` // equity / margin used; 0 when flat
}
