package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// CountConsolidator accumulates exactly N ticks into one candle, closing
// on the Nth (spec §4.H "Count-tick (CountConsolidator)"). Valid only for
// Resolution::Ticks(n) subscriptions.
type CountConsolidator struct {
	sub     domain.DataSubscription
	n       int64
	history *RollingWindow[domain.BaseData]
	current *domain.Candle
	seen    int64
}

func NewCountConsolidator(sub domain.DataSubscription, historyToRetain int) *CountConsolidator {
	if historyToRetain <= 0 {
		historyToRetain = defaultHistoryToRetain
	}
	return &CountConsolidator{sub: sub, n: sub.Resolution.N, history: NewRollingWindow[domain.BaseData](historyToRetain)}
}

func (c *CountConsolidator) Subscription() domain.DataSubscription    { return c.sub }
func (c *CountConsolidator) History() *RollingWindow[domain.BaseData] { return c.history }
func (c *CountConsolidator) Index(k int) (domain.BaseData, bool)      { return c.history.Index(k) }

func (c *CountConsolidator) Current() (domain.BaseData, bool) {
	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

// UpdateTime is a no-op: count bars close purely on tick count, never on
// wall-clock (mirrors the original implementation's consolidator enum,
// which routes Count through an empty update_time).
func (c *CountConsolidator) UpdateTime(time.Time) []domain.BaseData { return nil }

func (c *CountConsolidator) Update(data domain.BaseData) Result {
	o, h, l, cl, v := ohlcvOf(data)
	t := data.CloseTime()

	if c.current == nil {
		c.current = &domain.Candle{
			Symbol_:     c.sub.Symbol,
			Open:        o,
			High:        h,
			Low:         l,
			Close:       cl,
			Volume:      v,
			Range:       h.Sub(l),
			Time:        t,
			Resolution_: c.sub.Resolution,
		}
		c.seen = 1
	} else {
		c.current.High = decimal.Max(c.current.High, h)
		c.current.Low = decimal.Min(c.current.Low, l)
		c.current.Close = cl
		c.current.Range = c.current.High.Sub(c.current.Low)
		c.current.Volume = c.current.Volume.Add(v)
		c.current.Time = t
		c.seen++
	}

	if c.seen >= c.n {
		closed := *c.current
		closed.Closed = true
		c.history.Add(&closed)
		c.current = nil
		c.seen = 0
		return Result{Open: &closed, Closed: &closed}
	}
	return Result{Open: c.current}
}

var _ Consolidator = (*CountConsolidator)(nil)
