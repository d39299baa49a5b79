package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// DailyConsolidator builds N-day bars that respect a trading-hours
// calendar instead of a bare wall-clock boundary (spec §4.H "Daily with
// session hours"). Data outside the session is passed through as
// open_data only — it never joins the developing bar.
type DailyConsolidator struct {
	sub        domain.DataSubscription
	hours      TradingHours
	daysPerBar int
	history    *RollingWindow[domain.BaseData]
	current    *domain.Candle
	lastClose  decimal.Decimal
	haveClose  bool
	lastBarEnd time.Time
}

func NewDailyConsolidator(sub domain.DataSubscription, hours TradingHours, daysPerBar, historyToRetain int) *DailyConsolidator {
	if daysPerBar < 1 {
		daysPerBar = 1
	}
	if historyToRetain <= 0 {
		historyToRetain = defaultHistoryToRetain
	}
	return &DailyConsolidator{sub: sub, hours: hours, daysPerBar: daysPerBar, history: NewRollingWindow[domain.BaseData](historyToRetain)}
}

func (c *DailyConsolidator) Subscription() domain.DataSubscription    { return c.sub }
func (c *DailyConsolidator) History() *RollingWindow[domain.BaseData] { return c.history }
func (c *DailyConsolidator) Index(k int) (domain.BaseData, bool)      { return c.history.Index(k) }

func (c *DailyConsolidator) Current() (domain.BaseData, bool) {
	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

func (c *DailyConsolidator) UpdateTime(now time.Time) []domain.BaseData {
	if c.current == nil || now.Before(c.current.Time) {
		return nil
	}
	closed := c.closeCurrent()
	c.current = nil
	return []domain.BaseData{closed}
}

func (c *DailyConsolidator) Update(data domain.BaseData) Result {
	t := data.CloseTime()
	o, h, l, cl, v := ohlcvOf(data)

	if !c.hours.InSession(t) {
		pass := &domain.Candle{
			Symbol_:     c.sub.Symbol,
			Open:        o,
			High:        o,
			Low:         o,
			Close:       o,
			Time:        t,
			Resolution_: c.sub.Resolution,
			Type:        domain.CandleType{Kind: domain.CandleStandard},
		}
		return Result{Open: pass}
	}

	if c.current == nil {
		var fillers []domain.BaseData
		if c.hours.FillForward && c.haveClose {
			fillers = c.fillForwardGaps(t)
		}
		c.openNewBar(o, h, l, cl, v, t)
		c.lastClose, c.haveClose = cl, true
		if len(fillers) > 0 {
			return Result{Open: c.current, Closed: fillers[len(fillers)-1]}
		}
		return Result{Open: c.current}
	}

	if t.After(c.current.Time) {
		closed := c.closeCurrent()
		c.openNewBar(o, h, l, cl, v, t)
		c.lastClose, c.haveClose = cl, true
		return Result{Open: c.current, Closed: closed}
	}

	c.current.High = decimal.Max(c.current.High, h)
	c.current.Low = decimal.Min(c.current.Low, l)
	c.current.Close = cl
	c.current.Range = c.current.High.Sub(c.current.Low)
	c.current.Volume = c.current.Volume.Add(v)
	c.lastClose = cl
	return Result{Open: c.current}
}

// fillForwardGaps emits one zero-range bar at the open of every trading
// session skipped between the last closed bar and t's own session,
// using the last recorded close as every field's price (spec §4.H: "on
// long gaps, fill-forward optionally emits a zero-range bar at the next
// session open using the last bid/ask close"). Bounded to 30 sessions so
// a misconfigured calendar can't spin forever.
func (c *DailyConsolidator) fillForwardGaps(t time.Time) []domain.BaseData {
	if c.lastBarEnd.IsZero() {
		return nil
	}
	var fillers []domain.BaseData
	cursor := c.lastBarEnd
	for i := 0; i < 30; i++ {
		nextOpen := c.hours.NextSessionOpen(cursor)
		_, nextEnd, ok := c.hours.sessionFor(nextOpen)
		if !ok || !nextOpen.Before(t) {
			break
		}
		filler := &domain.Candle{
			Symbol_:     c.sub.Symbol,
			Open:        c.lastClose,
			High:        c.lastClose,
			Low:         c.lastClose,
			Close:       c.lastClose,
			Time:        nextEnd,
			Resolution_: c.sub.Resolution,
			Closed:      true,
			Type:        domain.CandleType{Kind: domain.CandleStandard},
		}
		c.history.Add(filler)
		fillers = append(fillers, filler)
		cursor = nextEnd
	}
	return fillers
}

func (c *DailyConsolidator) openNewBar(o, h, l, cl, v decimal.Decimal, t time.Time) {
	c.current = &domain.Candle{
		Symbol_:     c.sub.Symbol,
		Open:        o,
		High:        h,
		Low:         l,
		Close:       cl,
		Volume:      v,
		Range:       h.Sub(l),
		Time:        c.hours.NthSessionEnd(t, c.daysPerBar),
		Resolution_: c.sub.Resolution,
		Type:        domain.CandleType{Kind: domain.CandleStandard},
	}
}

func (c *DailyConsolidator) closeCurrent() domain.BaseData {
	closed := *c.current
	closed.Closed = true
	c.history.Add(&closed)
	c.lastBarEnd = closed.Time
	return &closed
}

var _ Consolidator = (*DailyConsolidator)(nil)
