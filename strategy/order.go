package strategy

type OrderType int

const (
	Buy      OrderType = 0
	Sell     OrderType = 1
	BuyStop  OrderType = 4
	SellStop OrderType = 5
)

func (t OrderType) String() string {
	switch t {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case BuyStop:
		return "BUYSTOP"
	case SellStop:
		return "SELLSTOP"
	default:
		return "UNKNOWN"
	}
}

// Market reports whether t is a filled position rather than a pending stop.
func (t OrderType) Market() bool { return t == Buy || t == Sell }

// IsBuy is true for the long side (BUY and BUYSTOP).
func (t OrderType) IsBuy() bool { return t == Buy || t == BuyStop }

const (
	CommentNormal = "NN"
	// CommentHedge marks entries opened against a lopsided or balanced
	// basket; they arm the homeopathy close-all.
	CommentHedge = "SS"
)

// Order is the engine's read-only view of a position or pending stop.
// Profit is marked to market at the bar's bid/ask in account currency.
type Order struct {
	Ticket    int64     `json:"ticket"`
	Type      OrderType `json:"type"`
	Lots      float64   `json:"lots"`
	OpenPrice float64   `json:"open_price"`
	OpenTime  int64     `json:"open_time"` // ms epoch
	Profit    float64   `json:"profit"`
	Comment   string    `json:"comment"`
}

type ActionKind int

const (
	ActClose  ActionKind = iota // close a market order at the current quote
	ActDelete                   // remove a pending stop
	ActPlace                    // submit a pending stop
	ActModify                   // move a pending stop
)

func (k ActionKind) String() string {
	switch k {
	case ActClose:
		return "CLOSE"
	case ActDelete:
		return "DELETE"
	case ActPlace:
		return "PLACE"
	case ActModify:
		return "MODIFY"
	default:
		return "UNKNOWN"
	}
}

type Action struct {
	Kind    ActionKind
	Ticket  int64 // Close, Delete, Modify
	Type    OrderType
	Lots    float64
	Price   float64 // Place, Modify
	Comment string
	Reason  string
}

// Decision is the ordered list of actions for one bar. The simulator
// applies them in order.
type Decision struct {
	Actions []Action
}

func (d Decision) Empty() bool { return len(d.Actions) == 0 }

// State is the EA memory carried between bars. Times are ms epoch.
type State struct {
	PauseUntil   int64   `json:"pause_until"`
	LastBarTime  int64   `json:"last_bar_time"`
	PeakBuyDiff  float64 `json:"peak_buy_diff"`
	PeakSellDiff float64 `json:"peak_sell_diff"`
}

// View is everything the engine may look at on one bar.
type View struct {
	Now          int64 // ms epoch
	BarTime      int64 // ms epoch of the bar open
	Bid, Ask     float64
	Point        float64
	Digits       int
	SpreadPoints float64
	Leverage     int
	FreeMargin   float64
	MarginPerLot float64
	Orders       []Order
}

// Decider is what the simulator drives once per bar.
type Decider interface {
	Name() string
	Decide(v View, st State) (Decision, State)
}
