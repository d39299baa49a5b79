package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// HeikinAshiConsolidator derives Heikin-Ashi candles from a primary
// candle/tick/quote stream (spec §4.H "Heikin-Ashi"):
//
//	ha_close = (O+H+L+C)/4
//	ha_open  = (prev_ha_open + prev_ha_close)/2
//	ha_high  = max(H, ha_open, ha_close)
//	ha_low   = min(L, ha_open, ha_close)
//
// All prices are rounded to tick_size. prev_ha_* is seeded from the
// first bar's open and close.
type HeikinAshiConsolidator struct {
	sub      domain.DataSubscription
	tickSize decimal.Decimal
	history  *RollingWindow[domain.BaseData]
	current  *domain.Candle

	prevHAOpen  decimal.Decimal
	prevHAClose decimal.Decimal
	seeded      bool
}

func NewHeikinAshiConsolidator(sub domain.DataSubscription, tickSize decimal.Decimal, historyToRetain int) *HeikinAshiConsolidator {
	if historyToRetain <= 0 {
		historyToRetain = defaultHistoryToRetain
	}
	return &HeikinAshiConsolidator{sub: sub, tickSize: tickSize, history: NewRollingWindow[domain.BaseData](historyToRetain)}
}

func (c *HeikinAshiConsolidator) Subscription() domain.DataSubscription    { return c.sub }
func (c *HeikinAshiConsolidator) History() *RollingWindow[domain.BaseData] { return c.history }
func (c *HeikinAshiConsolidator) Index(k int) (domain.BaseData, bool)      { return c.history.Index(k) }

func (c *HeikinAshiConsolidator) Current() (domain.BaseData, bool) {
	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

func (c *HeikinAshiConsolidator) UpdateTime(now time.Time) []domain.BaseData {
	if c.current == nil || now.Before(c.current.Time) {
		return nil
	}
	closed := c.closeCurrent()
	c.current = nil
	return []domain.BaseData{closed}
}

func (c *HeikinAshiConsolidator) Update(data domain.BaseData) Result {
	t := data.CloseTime()

	if c.current == nil {
		c.current = c.newHACandle(data)
		return Result{Open: c.current}
	}
	if t.After(c.current.Time) {
		closed := c.closeCurrent()
		c.current = c.newHACandle(data)
		return Result{Open: c.current, Closed: closed}
	}

	_, h, l, cl, v := ohlcvOf(data)
	c.current.High = decimal.Max(c.current.High, h)
	c.current.Low = decimal.Min(c.current.Low, l)
	c.current.Close = cl
	c.current.Range = c.current.High.Sub(c.current.Low)
	c.current.Volume = c.current.Volume.Add(v)
	return Result{Open: c.current}
}

func (c *HeikinAshiConsolidator) newHACandle(data domain.BaseData) *domain.Candle {
	o, h, l, cl, v := ohlcvOf(data)
	t := data.CloseTime()

	if !c.seeded {
		c.prevHAOpen = o
		c.prevHAClose = cl
		c.seeded = true
	}

	haClose := roundToTick(o.Add(h).Add(l).Add(cl).DivRound(decimal.NewFromInt(4), 8), c.tickSize)
	haOpen := roundToTick(c.prevHAOpen.Add(c.prevHAClose).DivRound(decimal.NewFromInt(2), 8), c.tickSize)
	haHigh := decimal.Max(h, haOpen, haClose)
	haLow := decimal.Min(l, haOpen, haClose)

	c.prevHAOpen = haOpen
	c.prevHAClose = haClose

	ct := domain.CandleType{Kind: domain.CandleHeikinAshi}
	return &domain.Candle{
		Symbol_:     c.sub.Symbol,
		Open:        haOpen,
		High:        haHigh,
		Low:         haLow,
		Close:       haClose,
		Volume:      v,
		Range:       haHigh.Sub(haLow),
		Time:        bucketEnd(c.sub.Resolution, t),
		Resolution_: c.sub.Resolution,
		Type:        ct,
	}
}

func (c *HeikinAshiConsolidator) closeCurrent() domain.BaseData {
	closed := *c.current
	closed.Closed = true
	c.history.Add(&closed)
	return &closed
}

var _ Consolidator = (*HeikinAshiConsolidator)(nil)
