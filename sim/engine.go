// Package sim replays M5 bars through a strategy.Decider against a
// simulated single-symbol account: spread and slippage, pending stop
// fills, margin, equity, blow-up and the drawdown stop.
package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/i-zrhe2016/amazing-3.1/journal"
	"github.com/i-zrhe2016/amazing-3.1/market"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

const (
	DefaultBalance  = 10_000.0
	DefaultLeverage = 100
)

// Close reasons the simulator itself produces.
const (
	ReasonEndOfWindow = "end_of_window"
	ReasonBlowup      = "blowup"
)

type Options struct {
	Instrument      market.InstrumentMeta
	AccountCurrency string  // default USD
	Balance         float64 // default 10000
	Leverage        int     // default 100
	// QuoteRate converts quote currency to account currency for crosses.
	QuoteRate float64
	Cost      CostModel // default zero cost
	// DrawdownStopPct stops the run once max drawdown reaches it. 0 disables.
	DrawdownStopPct float64

	RecordCurve  bool
	RecordTrades bool

	Journal     journal.Journal // optional
	RunID       string
	EquityEvery int // journal every Nth bar's equity; default 1
}

func (o Options) withDefaults() Options {
	if o.AccountCurrency == "" {
		o.AccountCurrency = "USD"
	}
	if o.Balance == 0 {
		o.Balance = DefaultBalance
	}
	if o.Leverage == 0 {
		o.Leverage = DefaultLeverage
	}
	if o.Cost == nil {
		o.Cost = FixedCost{}
	}
	if o.EquityEvery <= 0 {
		o.EquityEvery = 1
	}
	return o
}

func (o Options) Validate() error {
	switch {
	case o.Instrument.Name == "":
		return errs.Param("instrument", "is required")
	case o.Instrument.ContractSize <= 0:
		return errs.Param("instrument", "%s has no contract size", o.Instrument.Name)
	case o.Balance <= 0:
		return errs.Param("balance", "must be positive")
	case o.Leverage < 1:
		return errs.Param("leverage", "must be at least 1")
	case o.DrawdownStopPct < 0:
		return errs.Param("drawdown_limit", "must not be negative")
	}
	if _, err := market.QuoteToAccount(o.Instrument, o.AccountCurrency, 1, o.QuoteRate); err != nil {
		return errs.Param("quote_rate", "%v", err)
	}
	return nil
}

// BlowupEvent is the first bar where equity or free margin is no longer
// positive.
type BlowupEvent struct {
	BarIndex   int     `json:"bar_index"`
	Timestamp  int64   `json:"timestamp"`
	Equity     float64 `json:"equity"`
	FreeMargin float64 `json:"free_margin"`
}

type EquityPoint struct {
	Time       int64   `json:"time"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	FreeMargin float64 `json:"free_margin"`
}

type Summary struct {
	Bars           int     `json:"bars"`
	BarsRun        int     `json:"bars_run"`
	Start          int64   `json:"start"`
	End            int64   `json:"end"`
	StopTime       int64   `json:"stop_time,omitempty"`
	StartBalance   float64 `json:"start_balance"`
	FinalBalance   float64 `json:"final_balance"`
	FinalEquity    float64 `json:"final_equity"`
	NetProfit      float64 `json:"net_profit"`
	ReturnPct      float64 `json:"return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	MinFreeMargin  float64 `json:"min_free_margin"`
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	WinRate        float64 `json:"win_rate"`
	Fills          int     `json:"fills"`
	Rejected       int     `json:"rejected"`
	MaxOpenOrders  int     `json:"max_open_orders"`
}

type Result struct {
	Summary          Summary       `json:"summary"`
	EquityCurve      []EquityPoint `json:"equity_curve,omitempty"`
	Trades           []Trade       `json:"trades,omitempty"`
	Blowup           *BlowupEvent  `json:"blowup,omitempty"`
	DrawdownLimitHit bool          `json:"drawdown_limit_hit"`
}

// Engine is one simulated account. Run resets the account, so an Engine
// may run several bar series in turn, but not concurrently. The cost
// model's state carries over between runs.
type Engine struct {
	opts Options
	meta market.InstrumentMeta

	acct  Account
	book  []Position
	next  int64
	state strategy.State

	bar        market.Bar
	bid, ask   float64
	half       float64
	spreadPips float64

	dd      drawdown
	minFree float64
	res     Result
}

func NewEngine(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{opts: opts, meta: opts.Instrument}, nil
}

func (e *Engine) reset() {
	e.acct = Account{
		Currency:   e.opts.AccountCurrency,
		Balance:    e.opts.Balance,
		Equity:     e.opts.Balance,
		FreeMargin: e.opts.Balance,
	}
	e.book = nil
	e.next = 1
	e.state = strategy.State{}
	e.dd = drawdown{}
	e.minFree = math.Inf(1)
	e.res = Result{}
}

// Account returns the account as of the last processed bar.
func (e *Engine) Account() Account { return e.acct }

// Positions returns a copy of the open orders.
func (e *Engine) Positions() []Position { return append([]Position(nil), e.book...) }

// Run replays bars through d. Per bar: quote, fill triggered stops,
// decide, apply, revalue, then check blow-up and the drawdown stop.
// Whatever survives the last bar is closed at its quote.
func (e *Engine) Run(ctx context.Context, bars []market.Bar, d strategy.Decider) (Result, error) {
	e.reset()
	sum := &e.res.Summary
	sum.Bars = len(bars)
	sum.StartBalance = e.opts.Balance
	if len(bars) > 0 {
		sum.Start = bars[0].Timestamp
		sum.End = bars[len(bars)-1].Timestamp
	}

	for i, b := range bars {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return e.res, err
			}
		}

		e.quote(b)
		e.fillStops()
		if err := e.revalue(); err != nil {
			return e.res, err
		}

		view, err := e.view()
		if err != nil {
			return e.res, err
		}
		dec, st := d.Decide(view, e.state)
		e.state = st
		if err := e.apply(dec); err != nil {
			return e.res, err
		}
		if err := e.revalue(); err != nil {
			return e.res, err
		}
		sum.BarsRun = i + 1
		e.snapshot()
		e.minFree = math.Min(e.minFree, e.acct.FreeMargin)
		if n := len(e.book); n > sum.MaxOpenOrders {
			sum.MaxOpenOrders = n
		}

		if e.acct.Equity <= 0 || e.acct.FreeMargin <= 0 {
			e.res.Blowup = &BlowupEvent{
				BarIndex:   i,
				Timestamp:  b.Timestamp,
				Equity:     e.acct.Equity,
				FreeMargin: e.acct.FreeMargin,
			}
			sum.StopTime = b.Timestamp
			log.Debug().Str("strategy", d.Name()).Time("at", time.UnixMilli(b.Timestamp).UTC()).
				Float64("equity", e.acct.Equity).Float64("free_margin", e.acct.FreeMargin).Msg("blow-up")
			if err := e.abandon(); err != nil {
				return e.res, err
			}
			break
		}
		if e.opts.DrawdownStopPct > 0 && e.dd.max*100 >= e.opts.DrawdownStopPct {
			e.res.DrawdownLimitHit = true
			sum.StopTime = b.Timestamp
			break
		}
	}

	if e.res.Blowup == nil && sum.BarsRun > 0 {
		if err := e.closeAll(ReasonEndOfWindow); err != nil {
			return e.res, err
		}
		if err := e.revalue(); err != nil {
			return e.res, err
		}
		e.snapshot()
	}

	e.finish()
	return e.res, nil
}

func (e *Engine) quote(b market.Bar) {
	pip := e.meta.PipSize()
	e.bar = b
	e.spreadPips = e.opts.Cost.SpreadPips(b, pip)
	e.half = e.spreadPips * pip / 2
	e.bid = e.meta.Round(b.Close - e.half)
	e.ask = e.meta.Round(b.Close + e.half)
}

// slip moves px by this bar's slippage, up for buys and down for sells.
func (e *Engine) slip(px, lots float64, up bool) float64 {
	pip := e.meta.PipSize()
	d := e.opts.Cost.SlippagePips(e.bar, pip, lots) * pip
	if up {
		return e.meta.Round(px + d)
	}
	return e.meta.Round(px - d)
}

func (e *Engine) rate(px float64) (float64, error) {
	return market.QuoteToAccount(e.meta, e.acct.Currency, px, e.opts.QuoteRate)
}

func (e *Engine) fillStops() {
	for i := range e.book {
		p := &e.book[i]
		base, ok := stopFill(p, e.bar, e.half)
		if !ok {
			continue
		}
		if p.Type == strategy.BuyStop {
			p.Type = strategy.Buy
			p.OpenPrice = e.slip(base, p.Lots, true)
		} else {
			p.Type = strategy.Sell
			p.OpenPrice = e.slip(base, p.Lots, false)
		}
		p.OpenTime = e.bar.Timestamp
		e.res.Summary.Fills++
	}
}

func (e *Engine) mark(p *Position) float64 {
	if p.Type.IsBuy() {
		return e.bid
	}
	return e.ask
}

func (e *Engine) revalue() error {
	equity := e.acct.Balance
	var used float64
	mid := e.bar.Close

	for i := range e.book {
		p := &e.book[i]
		if !p.Type.Market() {
			p.Profit = 0
			continue
		}
		mark := e.mark(p)
		rate, err := e.rate(mark)
		if err != nil {
			return err
		}
		p.Profit = UnrealizedPL(p.units(e.meta.ContractSize), p.OpenPrice, mark, rate)
		equity += p.Profit

		mrate, err := e.rate(mid)
		if err != nil {
			return err
		}
		used += TradeMargin(p.units(e.meta.ContractSize), mid, mrate, e.opts.Leverage)
	}

	e.acct.Equity = equity
	e.acct.MarginUsed = used
	e.acct.FreeMargin = equity - used
	if used > 0 {
		e.acct.MarginLevel = equity / used
	} else {
		e.acct.MarginLevel = 0
	}
	return nil
}

func (e *Engine) view() (strategy.View, error) {
	rate, err := e.rate(e.bar.Close)
	if err != nil {
		return strategy.View{}, err
	}
	orders := make([]strategy.Order, len(e.book))
	for i := range e.book {
		orders[i] = e.book[i].order()
	}
	return strategy.View{
		Now:          e.bar.Timestamp,
		BarTime:      e.bar.Timestamp,
		Bid:          e.bid,
		Ask:          e.ask,
		Point:        e.meta.Point(),
		Digits:       e.meta.Digits,
		SpreadPoints: e.spreadPips * e.meta.PointsPerPip(),
		Leverage:     e.opts.Leverage,
		FreeMargin:   e.acct.FreeMargin,
		MarginPerLot: TradeMargin(e.meta.ContractSize, e.bar.Close, rate, e.opts.Leverage),
		Orders:       orders,
	}, nil
}

func (e *Engine) find(ticket int64) int {
	for i := range e.book {
		if e.book[i].Ticket == ticket {
			return i
		}
	}
	return -1
}

func (e *Engine) remove(i int) {
	e.book = append(e.book[:i], e.book[i+1:]...)
}

// apply executes a decision in order. Actions on unknown tickets or of
// the wrong order kind are counted as rejected and skipped, the way a
// broker refuses them.
func (e *Engine) apply(d strategy.Decision) error {
	for _, a := range d.Actions {
		ok := true
		switch a.Kind {
		case strategy.ActClose:
			var err error
			ok, err = e.closeTicket(a.Ticket, a.Reason)
			if err != nil {
				return err
			}
		case strategy.ActDelete:
			i := e.find(a.Ticket)
			ok = i >= 0 && !e.book[i].Type.Market()
			if ok {
				e.remove(i)
			}
		case strategy.ActPlace:
			ok = e.place(a)
		case strategy.ActModify:
			i := e.find(a.Ticket)
			ok = i >= 0 && !e.book[i].Type.Market()
			if ok {
				e.book[i].OpenPrice = e.meta.Round(a.Price)
			}
		default:
			ok = false
		}
		if !ok {
			e.res.Summary.Rejected++
		}
	}
	return nil
}

func (e *Engine) place(a strategy.Action) bool {
	if a.Type != strategy.BuyStop && a.Type != strategy.SellStop {
		return false
	}
	if a.Lots <= 0 || a.Price <= 0 {
		return false
	}
	e.book = append(e.book, Position{
		Ticket:    e.next,
		Type:      a.Type,
		Lots:      a.Lots,
		OpenPrice: e.meta.Round(a.Price),
		OpenTime:  e.bar.Timestamp,
		Comment:   a.Comment,
	})
	e.next++
	return true
}

// closeTicket closes a market order at the slipped bid (longs) or ask
// (shorts). A pending stop is deleted instead.
func (e *Engine) closeTicket(ticket int64, reason string) (bool, error) {
	i := e.find(ticket)
	if i < 0 {
		return false, nil
	}
	p := e.book[i]
	if !p.Type.Market() {
		e.remove(i)
		return true, nil
	}

	var px float64
	if p.Type == strategy.Buy {
		px = e.slip(e.bid, p.Lots, false)
	} else {
		px = e.slip(e.ask, p.Lots, true)
	}
	rate, err := e.rate(px)
	if err != nil {
		return false, err
	}
	pl := UnrealizedPL(p.units(e.meta.ContractSize), p.OpenPrice, px, rate)
	e.acct.Balance += pl
	e.remove(i)
	return true, e.recordTrade(p, px, pl, reason)
}

func (e *Engine) closeAll(reason string) error {
	for len(e.book) > 0 {
		if _, err := e.closeTicket(e.book[0].Ticket, reason); err != nil {
			return err
		}
	}
	return nil
}

// abandon realizes every position at its current mark without slippage
// and drops the stops, so the balance becomes the blow-up equity.
func (e *Engine) abandon() error {
	for _, p := range e.book {
		if !p.Type.Market() {
			continue
		}
		if err := e.recordTrade(p, e.mark(&p), p.Profit, ReasonBlowup); err != nil {
			return err
		}
	}
	e.book = nil
	e.acct.Balance = e.acct.Equity
	e.acct.MarginUsed = 0
	e.acct.FreeMargin = e.acct.Equity
	e.acct.MarginLevel = 0
	return nil
}

func (e *Engine) recordTrade(p Position, px, pl float64, reason string) error {
	sum := &e.res.Summary
	sum.Trades++
	switch {
	case pl > 0:
		sum.Wins++
		sum.GrossProfit += pl
	case pl < 0:
		sum.Losses++
		sum.GrossLoss -= pl
	}

	t := Trade{
		Ticket:     p.Ticket,
		Side:       p.Type.String(),
		Lots:       p.Lots,
		OpenPrice:  p.OpenPrice,
		ClosePrice: px,
		OpenTime:   p.OpenTime,
		CloseTime:  e.bar.Timestamp,
		RealizedPL: pl,
		Reason:     reason,
		Comment:    p.Comment,
	}
	if e.opts.RecordTrades {
		e.res.Trades = append(e.res.Trades, t)
	}
	if e.opts.Journal == nil {
		return nil
	}
	err := e.opts.Journal.RecordTrade(journal.TradeRecord{
		RunID:      e.opts.RunID,
		TradeID:    fmt.Sprint(t.Ticket),
		Instrument: e.meta.Name,
		Side:       t.Side,
		Lots:       t.Lots,
		EntryPrice: t.OpenPrice,
		ExitPrice:  t.ClosePrice,
		OpenTime:   time.UnixMilli(t.OpenTime).UTC(),
		CloseTime:  time.UnixMilli(t.CloseTime).UTC(),
		RealizedPL: t.RealizedPL,
		Reason:     t.Reason,
		Comment:    t.Comment,
	})
	if err != nil {
		return fmt.Errorf("journal trade: %w", err)
	}
	return nil
}

func (e *Engine) snapshot() {
	e.dd.add(e.acct.Equity)
	if e.opts.RecordCurve {
		e.res.EquityCurve = append(e.res.EquityCurve, EquityPoint{
			Time:       e.bar.Timestamp,
			Balance:    e.acct.Balance,
			Equity:     e.acct.Equity,
			FreeMargin: e.acct.FreeMargin,
		})
	}
	if e.opts.Journal == nil || e.res.Summary.BarsRun%e.opts.EquityEvery != 0 {
		return
	}
	err := e.opts.Journal.RecordEquity(journal.EquitySnapshot{
		RunID:       e.opts.RunID,
		Time:        time.UnixMilli(e.bar.Timestamp).UTC(),
		Balance:     e.acct.Balance,
		Equity:      e.acct.Equity,
		MarginUsed:  e.acct.MarginUsed,
		FreeMargin:  e.acct.FreeMargin,
		MarginLevel: e.acct.MarginLevel,
	})
	if err != nil {
		log.Warn().Err(err).Msg("journal equity")
	}
}

func (e *Engine) finish() {
	sum := &e.res.Summary
	sum.FinalBalance = e.acct.Balance
	sum.FinalEquity = e.acct.Equity
	sum.NetProfit = e.acct.Balance - sum.StartBalance
	sum.ReturnPct = sum.NetProfit / sum.StartBalance * 100
	sum.MaxDrawdownPct = e.dd.max * 100
	if math.IsInf(e.minFree, 1) {
		e.minFree = e.acct.FreeMargin
	}
	sum.MinFreeMargin = e.minFree
	if sum.Trades > 0 {
		sum.WinRate = float64(sum.Wins) / float64(sum.Trades)
	}
	if sum.GrossLoss > 0 {
		sum.ProfitFactor = sum.GrossProfit / sum.GrossLoss
	}
}
