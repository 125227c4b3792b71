package strategy

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Engine is the Amazing3.1 grid/martingale EA as a pure function of the
// bar view and its carried State.
type Engine struct {
	p Params

	// MT4 init() flips these externs to negative internally.
	maxLoss         float64
	maxLossCloseAll float64
	stopLoss        float64
	money           float64

	eaStart, eaStop       int
	limitStart, limitStop int
}

func NewEngine(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		p:               p,
		maxLoss:         negate(p.MaxLoss),
		maxLossCloseAll: negate(p.MaxLossCloseAll),
		stopLoss:        negate(p.StopLoss),
		money:           negate(p.Money),
	}
	e.eaStart, _ = parseClock(p.EAStartTime)
	e.eaStop, _ = parseClock(p.EAStopTime)
	e.limitStart, _ = parseClock(p.LimitStartTime)
	e.limitStop, _ = parseClock(p.LimitStopTime)
	return e, nil
}

func negate(v float64) float64 {
	if v > 0 {
		return -v
	}
	return v
}

func (e *Engine) Name() string   { return "amazing31" }
func (e *Engine) Params() Params { return e.p }

// side is a snapshot of one direction of the basket at the top of the bar.
type side struct {
	market  []Order
	pending []Order
	profit  float64
	lots    float64
	ss      int
}

// tick carries the per-bar working set. book shrinks as closes are
// decided so later steps see what the broker would see.
type tick struct {
	v       View
	book    []Order
	actions []Action
	free    float64
}

func (t *tick) n(x float64) float64 {
	s := math.Pow10(t.v.Digits)
	return math.Round(x*s) / s
}

func (t *tick) close(o Order, reason string) {
	kind := ActClose
	if !o.Type.Market() {
		kind = ActDelete
	}
	t.actions = append(t.actions, Action{Kind: kind, Ticket: o.Ticket, Type: o.Type, Lots: o.Lots, Reason: reason})
	for i := range t.book {
		if t.book[i].Ticket == o.Ticket {
			t.book = append(t.book[:i:i], t.book[i+1:]...)
			break
		}
	}
	if kind == ActClose {
		t.free += o.Lots * t.v.MarginPerLot
	}
}

// closeSide closes market orders and deletes stops of one side (+1 buy,
// -1 sell) or of both (0), in book order.
func (t *tick) closeSide(dir int, reason string) {
	snapshot := append([]Order(nil), t.book...)
	for _, o := range snapshot {
		if o.Type.IsBuy() && (dir == 1 || dir == 0) {
			t.close(o, reason)
		} else if !o.Type.IsBuy() && (dir == -1 || dir == 0) {
			t.close(o, reason)
		}
	}
}

// topProfits sums the n largest winners (wins) or losers' magnitudes of
// one order type in the current book.
func (t *tick) topProfits(typ OrderType, wins bool, n int) float64 {
	var vals []float64
	for _, o := range t.book {
		if o.Type != typ {
			continue
		}
		if wins && o.Profit >= 0 {
			vals = append(vals, o.Profit)
		} else if !wins && o.Profit < 0 {
			vals = append(vals, -o.Profit)
		}
	}
	slices.SortFunc(vals, func(a, b float64) int { return cmp.Compare(b, a) })
	sum := 0.0
	for i := 0; i < n && i < len(vals); i++ {
		sum += vals[i]
	}
	return sum
}

// closeExtremes closes up to count orders of typ: the best winners when
// best is set, otherwise the worst losers. Orders on the wrong side of
// zero use up the count without closing.
func (t *tick) closeExtremes(typ OrderType, count int, best bool) {
	for count > 0 {
		var target *Order
		for i := range t.book {
			o := &t.book[i]
			if o.Type != typ {
				continue
			}
			if target == nil || (best && o.Profit > target.Profit) || (!best && o.Profit < target.Profit) {
				target = o
			}
		}
		if target == nil {
			return
		}
		if best && target.Profit >= 0 || !best && target.Profit < 0 {
			t.close(*target, "close_buy_sell")
		}
		count--
	}
}

func split(orders []Order) (buy, sell side) {
	for _, o := range orders {
		switch o.Type {
		case Buy:
			buy.market = append(buy.market, o)
			buy.profit += o.Profit
			buy.lots += o.Lots
			if o.Comment == CommentHedge {
				buy.ss++
			}
		case Sell:
			sell.market = append(sell.market, o)
			sell.profit += o.Profit
			sell.lots += o.Lots
			if o.Comment == CommentHedge {
				sell.ss++
			}
		case BuyStop:
			buy.pending = append(buy.pending, o)
		case SellStop:
			sell.pending = append(sell.pending, o)
		}
	}
	return buy, sell
}

func extreme(orders []Order, higher bool) float64 {
	out := 0.0
	for i, o := range orders {
		if i == 0 || (higher && o.OpenPrice > out) || (!higher && o.OpenPrice < out) {
			out = o.OpenPrice
		}
	}
	return out
}

// latestOpenTime is the open time of the highest ticket on a side.
func latestOpenTime(orders []Order) int64 {
	var ticket int64 = -1
	var at int64
	for _, o := range orders {
		if o.Ticket > ticket {
			ticket = o.Ticket
			at = o.OpenTime
		}
	}
	return at
}

func inWindow(ms int64, start, stop int) bool {
	t := time.UnixMilli(ms).UTC()
	cur := t.Hour()*3600 + t.Minute()*60 + t.Second()
	if start <= stop {
		return start <= cur && cur <= stop
	}
	return cur >= start || cur <= stop
}

// Decide runs one EA tick.
func (e *Engine) Decide(v View, st State) (Decision, State) {
	p := &e.p
	t := &tick{v: v, book: append([]Order(nil), v.Orders...), free: v.FreeMargin}

	buy, sell := split(v.Orders)
	total := buy.profit + sell.profit

	buyHigh := extreme(append(append([]Order(nil), buy.market...), buy.pending...), true)
	buyLow := extreme(buy.market, false)
	sellLow := extreme(append(append([]Order(nil), sell.market...), sell.pending...), false)
	sellHigh := extreme(sell.market, true)

	sellSSWhenNoBuySS := 0
	if buy.ss < 1 {
		sellSSWhenNoBuySS = sell.ss
	}

	canBuy, canSell := true, true
	if !inWindow(v.Now, e.eaStart, e.eaStop) {
		canBuy, canSell = false, false
	}
	if v.Leverage < p.LeverageMin ||
		len(buy.market)+len(sell.market) >= p.Totals ||
		v.SpreadPoints > p.MaxSpread {
		canBuy, canSell = false, false
	}
	if v.Now < st.PauseUntil {
		canBuy, canSell = false, false
	}
	if p.Over && len(buy.market) == 0 {
		canBuy = false
	}
	if p.Over && len(sell.market) == 0 {
		canSell = false
	}

	closeAll := func(reason string) (Decision, State) {
		t.closeSide(0, reason)
		if p.NextTime > 0 {
			st.PauseUntil = v.Now + int64(p.NextTime)*1000
		}
		return Decision{Actions: t.actions}, st
	}

	if p.Over && total >= p.CloseAll {
		return closeAll("over_close_all")
	}

	if !p.Over {
		if (sellSSWhenNoBuySS < 1 || !p.HomeopathyCloseAll) &&
			buy.profit > e.maxLossCloseAll && sell.profit > e.maxLossCloseAll {
			if (p.ProfitByCount && buy.profit > p.StopProfit*float64(len(buy.market))) ||
				(!p.ProfitByCount && buy.profit > p.StopProfit) {
				t.closeSide(1, "stop_profit_buy")
				return Decision{Actions: t.actions}, st
			}
			if (p.ProfitByCount && sell.profit > p.StopProfit*float64(len(sell.market))) ||
				(!p.ProfitByCount && sell.profit > p.StopProfit) {
				t.closeSide(-1, "stop_profit_sell")
				return Decision{Actions: t.actions}, st
			}
		}

		if p.HomeopathyCloseAll && (buy.ss > 0 || sell.ss > 0) && total >= p.CloseAll {
			return closeAll("homeopathy_close_all")
		}

		if total >= p.CloseAll && (buy.profit <= e.maxLossCloseAll || sell.profit <= e.maxLossCloseAll) {
			return closeAll("max_loss_close_all")
		}
	}

	if e.stopLoss != 0 && total <= e.stopLoss {
		return closeAll("stop_loss")
	}

	if p.CloseBuySell {
		e.closeBuySell(t, &st, buy, sell)
	}

	aggressive := e.money == 0 || total > e.money

	openGate := (p.OpenMode == OpenBar && st.LastBarTime != v.BarTime) ||
		p.OpenMode == OpenSleep || p.OpenMode == OpenAlways

	if openGate {
		limit := inWindow(v.Now, e.limitStart, e.limitStop)
		e.tryOpenBuy(t, canBuy, buy, sell, buyHigh, buyLow, aggressive, limit)
		e.tryOpenSell(t, canSell, sell, buy, sellLow, sellHigh, aggressive, limit)
		st.LastBarTime = v.BarTime
	}

	e.trailBuy(t, canBuy, len(buy.market), aggressive, buyHigh, buyLow, buy.pending)
	e.trailSell(t, canSell, len(sell.market), aggressive, sellLow, sellHigh, sell.pending)

	return Decision{Actions: t.actions}, st
}

// closeBuySell trims a lopsided side: its best winner and two worst
// losers go once the side's winner outweighs its losers.
func (e *Engine) closeBuySell(t *tick, st *State, buy, sell side) {
	buyDiff := t.topProfits(Buy, true, 1) - t.topProfits(Buy, false, 2)
	st.PeakBuyDiff = math.Max(st.PeakBuyDiff, buyDiff)
	if st.PeakBuyDiff > 0 && buyDiff > 0 && buy.lots > 0 && len(buy.market) > 3 {
		if buy.lots > bestLots(buy.market)*3+sell.lots {
			t.closeExtremes(Buy, 1, true)
			t.closeExtremes(Buy, 2, false)
			st.PeakBuyDiff = 0
			st.PeakSellDiff = 0
		}
	}

	sellDiff := t.topProfits(Sell, true, 1) - t.topProfits(Sell, false, 2)
	st.PeakSellDiff = math.Max(st.PeakSellDiff, sellDiff)
	if st.PeakSellDiff > 0 && sellDiff > 0 && sell.lots > 0 && len(sell.market) > 3 {
		if sell.lots > bestLots(sell.market)*3+buy.lots {
			t.closeExtremes(Sell, 1, true)
			t.closeExtremes(Sell, 2, false)
			st.PeakBuyDiff = 0
			st.PeakSellDiff = 0
		}
	}
}

// bestLots is the size of the first most profitable order.
func bestLots(orders []Order) float64 {
	if len(orders) == 0 {
		return 0
	}
	best := orders[0]
	for _, o := range orders[1:] {
		if o.Profit > best.Profit {
			best = o
		}
	}
	return best.Lots
}

// Lot returns the size of the next entry on a side that already holds
// count market orders: lot * k^n + n * plus_lot, capped and rounded to
// digits_lot.
func (e *Engine) Lot(count int) float64 {
	p := &e.p
	x := p.Lot
	if count > 0 {
		x = p.Lot*math.Pow(p.KLot, float64(count)) + float64(count)*p.PlusLot
	}
	x = math.Min(x, p.MaxLot)
	f, _ := decimal.NewFromFloat(x).Round(int32(p.DigitsLot)).Float64()
	return f
}

func (e *Engine) canAfford(t *tick, lots float64) bool {
	if !e.p.CheckMarginForAddOrders {
		return true
	}
	need := t.v.MarginPerLot
	if need <= 0 {
		return true
	}
	return lots*2 < t.free/need
}

func (e *Engine) steps(aggressive bool) (dist, step int) {
	if aggressive {
		return e.p.MinDistance, e.p.Step
	}
	return e.p.TwoMinDistance, e.p.TwoStep
}

func (e *Engine) tryOpenBuy(t *tick, can bool, buy, sell side, high, low float64, aggressive, limit bool) {
	p := &e.p
	v := t.v
	pt := v.Point
	if len(buy.pending) > 0 || buy.profit <= e.maxLoss || !can {
		return
	}
	if p.OpenMode == OpenSleep && v.Now-latestOpenTime(buy.market) < int64(p.SleepSeconds)*1000 {
		return
	}

	count := len(buy.market)
	dist, step := e.steps(aggressive)
	var px float64
	if count == 0 {
		px = t.n(v.Ask + float64(p.FirstStep)*pt)
	} else {
		px = t.n(v.Ask + float64(dist)*pt)
		if low > 0 && px < t.n(low-float64(step)*pt) {
			px = t.n(v.Ask + float64(step)*pt)
		}
	}

	hedge := high > 0 && px >= t.n(high+float64(step)*pt) &&
		sell.lots > buy.lots*3 && sell.lots-buy.lots > 0.2
	homeo := p.Homeopathy && high > 0 && px >= t.n(high+float64(p.Step)*pt) && buy.lots == sell.lots
	grid := low > 0 && px <= t.n(low-float64(step)*pt)
	if !(count == 0 || hedge || grid || homeo) {
		return
	}

	lots := e.Lot(count)
	if count > 0 && !e.canAfford(t, lots) {
		return
	}
	if count > 0 && limit && p.OnTopNotBuyAdd != 0 && px >= p.OnTopNotBuyAdd {
		return
	}

	comment := CommentNormal
	if hedge || homeo {
		comment = CommentHedge
	}
	t.actions = append(t.actions, Action{Kind: ActPlace, Type: BuyStop, Lots: lots, Price: px, Comment: comment, Reason: "open"})
}

func (e *Engine) tryOpenSell(t *tick, can bool, sell, buy side, low, high float64, aggressive, limit bool) {
	p := &e.p
	v := t.v
	pt := v.Point
	if len(sell.pending) > 0 || sell.profit <= e.maxLoss || !can {
		return
	}
	if p.OpenMode == OpenSleep && v.Now-latestOpenTime(sell.market) < int64(p.SleepSeconds)*1000 {
		return
	}

	count := len(sell.market)
	dist, step := e.steps(aggressive)
	var px float64
	if count == 0 {
		px = t.n(v.Bid - float64(p.FirstStep)*pt)
	} else {
		px = t.n(v.Bid - float64(dist)*pt)
		if high > 0 && px < t.n(high+float64(step)*pt) {
			px = t.n(v.Bid - float64(step)*pt)
		}
	}

	hedge := low > 0 && px <= t.n(low-float64(step)*pt) &&
		buy.lots > sell.lots*3 && buy.lots-sell.lots > 0.2
	homeo := p.Homeopathy && low > 0 && px <= t.n(low-float64(p.Step)*pt) && buy.lots == sell.lots
	grid := high > 0 && px >= t.n(high+float64(step)*pt)
	if !(count == 0 || hedge || grid || homeo) {
		return
	}

	lots := e.Lot(count)
	if count > 0 && !e.canAfford(t, lots) {
		return
	}
	if count > 0 && limit && p.OnUnderNotSellAdd != 0 && px <= p.OnUnderNotSellAdd {
		return
	}

	comment := CommentNormal
	if hedge || homeo {
		comment = CommentHedge
	}
	t.actions = append(t.actions, Action{Kind: ActPlace, Type: SellStop, Lots: lots, Price: px, Comment: comment, Reason: "open"})
}

// trailBuy pulls the highest buy stop down toward the market once it sits
// more than step_trail_orders above the fresh entry price.
func (e *Engine) trailBuy(t *tick, can bool, count int, aggressive bool, high, low float64, stops []Order) {
	if !can || len(stops) == 0 {
		return
	}
	p := &e.p
	pt := t.v.Point

	pending := stops[0]
	for _, o := range stops[1:] {
		if o.OpenPrice > pending.OpenPrice {
			pending = o
		}
	}
	dist, step := e.steps(aggressive)
	if count == 0 {
		dist = p.FirstStep
	}
	px := t.n(t.v.Ask + float64(dist)*pt)
	if t.n(pending.OpenPrice-float64(p.StepTrailOrders)*pt) > px {
		if low == 0 || px <= t.n(low-float64(step)*pt) || px >= t.n(high+float64(step)*pt) {
			t.actions = append(t.actions, Action{Kind: ActModify, Ticket: pending.Ticket, Type: BuyStop, Lots: pending.Lots, Price: px, Reason: "trail"})
		}
	}
}

func (e *Engine) trailSell(t *tick, can bool, count int, aggressive bool, low, high float64, stops []Order) {
	if !can || len(stops) == 0 {
		return
	}
	p := &e.p
	pt := t.v.Point

	pending := stops[0]
	for _, o := range stops[1:] {
		if o.OpenPrice < pending.OpenPrice {
			pending = o
		}
	}
	dist, step := e.steps(aggressive)
	if count == 0 {
		dist = p.FirstStep
	}
	px := t.n(t.v.Bid - float64(dist)*pt)
	if t.n(pending.OpenPrice+float64(p.StepTrailOrders)*pt) < px {
		if high == 0 || px >= t.n(high+float64(step)*pt) || px <= t.n(low-float64(step)*pt) {
			t.actions = append(t.actions, Action{Kind: ActModify, Ticket: pending.Ticket, Type: SellStop, Lots: pending.Lots, Price: px, Reason: "trail"})
		}
	}
}
