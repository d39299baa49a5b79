package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// bidAskOf extracts a two-sided OHLC view from any primary BaseData a
// QuoteBarConsolidator can legally receive. A Tick carries only a single
// price, so it feeds both sides identically.
func bidAskOf(data domain.BaseData) (bidO, bidH, bidL, bidC, askO, askH, askL, askC, v decimal.Decimal) {
	switch d := data.(type) {
	case *domain.Quote:
		return d.Bid, d.Bid, d.Bid, d.Bid, d.Ask, d.Ask, d.Ask, d.Ask, d.BidVol.Add(d.AskVol)
	case *domain.QuoteBar:
		return d.BidOpen, d.BidHigh, d.BidLow, d.BidClose, d.AskOpen, d.AskHigh, d.AskLow, d.AskClose, d.Volume
	case *domain.Tick:
		return d.Price, d.Price, d.Price, d.Price, d.Price, d.Price, d.Price, d.Price, d.Volume
	default:
		z := decimal.Zero
		return z, z, z, z, z, z, z, z, z
	}
}

// QuoteBarConsolidator builds bid/ask OHLC bars on a fixed duration
// boundary, the QuoteBars analogue of TimeCandleConsolidator (spec §4.H;
// §4.I step 3 "QuoteBars output -> prefer Quotes(Instant)...").
type QuoteBarConsolidator struct {
	sub     domain.DataSubscription
	history *RollingWindow[domain.BaseData]
	current *domain.QuoteBar
}

func NewQuoteBarConsolidator(sub domain.DataSubscription, historyToRetain int) *QuoteBarConsolidator {
	if historyToRetain <= 0 {
		historyToRetain = defaultHistoryToRetain
	}
	return &QuoteBarConsolidator{sub: sub, history: NewRollingWindow[domain.BaseData](historyToRetain)}
}

func (c *QuoteBarConsolidator) Subscription() domain.DataSubscription    { return c.sub }
func (c *QuoteBarConsolidator) History() *RollingWindow[domain.BaseData] { return c.history }
func (c *QuoteBarConsolidator) Index(k int) (domain.BaseData, bool)      { return c.history.Index(k) }

func (c *QuoteBarConsolidator) Current() (domain.BaseData, bool) {
	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

func (c *QuoteBarConsolidator) Update(data domain.BaseData) Result {
	bidO, bidH, bidL, bidC, askO, askH, askL, askC, v := bidAskOf(data)
	t := data.CloseTime()

	if c.current == nil {
		c.current = c.newBar(bidO, bidH, bidL, bidC, askO, askH, askL, askC, v, t)
		return Result{Open: c.current}
	}

	if t.After(c.current.Time) {
		closed := c.closeCurrent()
		c.current = c.newBar(bidO, bidH, bidL, bidC, askO, askH, askL, askC, v, t)
		return Result{Open: c.current, Closed: closed}
	}

	c.current.BidHigh = decimal.Max(c.current.BidHigh, bidH)
	c.current.BidLow = decimal.Min(c.current.BidLow, bidL)
	c.current.BidClose = bidC
	c.current.AskHigh = decimal.Max(c.current.AskHigh, askH)
	c.current.AskLow = decimal.Min(c.current.AskLow, askL)
	c.current.AskClose = askC
	c.current.Volume = c.current.Volume.Add(v)
	return Result{Open: c.current}
}

func (c *QuoteBarConsolidator) UpdateTime(now time.Time) []domain.BaseData {
	if c.current == nil || now.Before(c.current.Time) {
		return nil
	}
	closed := c.closeCurrent()
	c.current = nil
	return []domain.BaseData{closed}
}

func (c *QuoteBarConsolidator) newBar(bidO, bidH, bidL, bidC, askO, askH, askL, askC, v decimal.Decimal, t time.Time) *domain.QuoteBar {
	ct := domain.CandleType{Kind: domain.CandleStandard}
	if c.sub.CandleType != nil {
		ct = *c.sub.CandleType
	}
	return &domain.QuoteBar{
		Symbol_:     c.sub.Symbol,
		BidOpen:     bidO,
		BidHigh:     bidH,
		BidLow:      bidL,
		BidClose:    bidC,
		AskOpen:     askO,
		AskHigh:     askH,
		AskLow:      askL,
		AskClose:    askC,
		Volume:      v,
		Time:        bucketEnd(c.sub.Resolution, t),
		Resolution_: c.sub.Resolution,
		Closed:      false,
		Type:        ct,
	}
}

func (c *QuoteBarConsolidator) closeCurrent() domain.BaseData {
	closed := *c.current
	closed.Closed = true
	c.history.Add(&closed)
	return &closed
}

var _ Consolidator = (*QuoteBarConsolidator)(nil)
