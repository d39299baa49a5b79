package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// TimeCandleConsolidator builds standard OHLCV candles on a fixed
// duration boundary (spec §4.H "Time-candle (CandleStickConsolidator)").
type TimeCandleConsolidator struct {
	sub     domain.DataSubscription
	history *RollingWindow[domain.BaseData]
	current *domain.Candle
}

func NewTimeCandleConsolidator(sub domain.DataSubscription, historyToRetain int) *TimeCandleConsolidator {
	if historyToRetain <= 0 {
		historyToRetain = defaultHistoryToRetain
	}
	return &TimeCandleConsolidator{sub: sub, history: NewRollingWindow[domain.BaseData](historyToRetain)}
}

func (c *TimeCandleConsolidator) Subscription() domain.DataSubscription    { return c.sub }
func (c *TimeCandleConsolidator) History() *RollingWindow[domain.BaseData] { return c.history }
func (c *TimeCandleConsolidator) Index(k int) (domain.BaseData, bool)      { return c.history.Index(k) }

func (c *TimeCandleConsolidator) Current() (domain.BaseData, bool) {
	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

// Update feeds one primary datum in. On first use it opens a bar; a
// datum whose close time is past bar_end closes the current bar and
// opens a new one seeded from the new datum.
func (c *TimeCandleConsolidator) Update(data domain.BaseData) Result {
	o, h, l, cl, v := ohlcvOf(data)
	t := data.CloseTime()

	if c.current == nil {
		c.current = c.newBar(o, h, l, cl, v, t)
		return Result{Open: c.current}
	}

	if t.After(c.current.Time) {
		// datum strictly past this bar's close (c.current.Time is the
		// bar's end boundary): close it, open the next. A datum landing
		// exactly on the boundary is this bar's own last print instead.
		closed := c.closeCurrent()
		c.current = c.newBar(o, h, l, cl, v, t)
		return Result{Open: c.current, Closed: closed}
	}

	c.current.High = decimal.Max(c.current.High, h)
	c.current.Low = decimal.Min(c.current.Low, l)
	c.current.Close = cl
	c.current.Range = c.current.High.Sub(c.current.Low)
	c.current.Volume = c.current.Volume.Add(v)
	return Result{Open: c.current}
}

// UpdateTime flushes the current bar if wall-clock has advanced past its
// close, even without a trailing datum (spec §4.H update_time).
func (c *TimeCandleConsolidator) UpdateTime(now time.Time) []domain.BaseData {
	if c.current == nil || now.Before(c.current.Time) {
		return nil
	}
	closed := c.closeCurrent()
	c.current = nil
	return []domain.BaseData{closed}
}

func (c *TimeCandleConsolidator) newBar(o, h, l, cl, v decimal.Decimal, t time.Time) *domain.Candle {
	ct := domain.CandleType{Kind: domain.CandleStandard}
	if c.sub.CandleType != nil {
		ct = *c.sub.CandleType
	}
	return &domain.Candle{
		Symbol_:     c.sub.Symbol,
		Open:        o,
		High:        h,
		Low:         l,
		Close:       cl,
		Volume:      v,
		Range:       h.Sub(l),
		Time:        bucketEnd(c.sub.Resolution, t),
		Resolution_: c.sub.Resolution,
		Closed:      false,
		Type:        ct,
	}
}

func (c *TimeCandleConsolidator) closeCurrent() domain.BaseData {
	closed := *c.current
	closed.Closed = true
	c.history.Add(&closed)
	return &closed
}

var _ Consolidator = (*TimeCandleConsolidator)(nil)
