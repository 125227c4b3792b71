package sim

import "github.com/i-zrhe2016/amazing-3.1/strategy"

// Position is an open market order or a pending stop. Times are ms epoch.
type Position struct {
	Ticket    int64
	Type      strategy.OrderType
	Lots      float64
	OpenPrice float64
	OpenTime  int64
	Comment   string
	Profit    float64 // floating P&L in account currency; 0 for stops
}

func (p *Position) units(contract float64) float64 {
	u := p.Lots * contract
	if !p.Type.IsBuy() {
		u = -u
	}
	return u
}

func (p *Position) order() strategy.Order {
	return strategy.Order{
		Ticket:    p.Ticket,
		Type:      p.Type,
		Lots:      p.Lots,
		OpenPrice: p.OpenPrice,
		OpenTime:  p.OpenTime,
		Profit:    p.Profit,
		Comment:   p.Comment,
	}
}

// Trade is a closed position.
type Trade struct {
	Ticket     int64   `json:"ticket"`
	Side       string  `json:"side"`
	Lots       float64 `json:"lots"`
	OpenPrice  float64 `json:"open_price"`
	ClosePrice float64 `json:"close_price"`
	OpenTime   int64   `json:"open_time"`
	CloseTime  int64   `json:"close_time"`
	RealizedPL float64 `json:"realized_pl"`
	Reason     string  `json:"reason"`
	Comment    string  `json:"comment,omitempty"`
}
