package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

type renkoDirection uint8

const (
	renkoNone renkoDirection = iota
	renkoUp
	renkoDown
)

// RenkoConsolidator emits a brick once price has moved brick_size from
// the last brick's close; reversing direction requires 2x brick_size
// (classic Renko), per spec §4.H "Renko". A single datum that moves
// price by several brick_size multiples emits several bricks in one
// Update call. Time of a brick is the triggering datum's close time.
type RenkoConsolidator struct {
	sub       domain.DataSubscription
	brickSize decimal.Decimal
	history   *RollingWindow[domain.BaseData]

	lastClose decimal.Decimal
	direction renkoDirection
	seeded    bool
}

func NewRenkoConsolidator(sub domain.DataSubscription, brickSize decimal.Decimal, historyToRetain int) *RenkoConsolidator {
	if historyToRetain <= 0 {
		historyToRetain = defaultHistoryToRetain
	}
	return &RenkoConsolidator{sub: sub, brickSize: brickSize, history: NewRollingWindow[domain.BaseData](historyToRetain)}
}

func (c *RenkoConsolidator) Subscription() domain.DataSubscription    { return c.sub }
func (c *RenkoConsolidator) History() *RollingWindow[domain.BaseData] { return c.history }
func (c *RenkoConsolidator) Index(k int) (domain.BaseData, bool)      { return c.history.Index(k) }

func (c *RenkoConsolidator) Current() (domain.BaseData, bool) {
	return c.history.Current()
}

// UpdateTime is a no-op: bricks are triggered purely by price movement.
func (c *RenkoConsolidator) UpdateTime(time.Time) []domain.BaseData { return nil }

func (c *RenkoConsolidator) Update(data domain.BaseData) Result {
	_, _, _, price, _ := ohlcvOf(data)
	t := data.CloseTime()

	if !c.seeded {
		c.lastClose = price
		c.seeded = true
		return Result{}
	}

	var lastBrick domain.BaseData
	for {
		brick, ok := c.tryEmit(price, t)
		if !ok {
			break
		}
		lastBrick = brick
	}
	if lastBrick == nil {
		return Result{}
	}
	return Result{Open: lastBrick, Closed: lastBrick}
}

// tryEmit emits at most one brick, returning (brick, true) if price has
// moved far enough from lastClose under the current direction's
// threshold (brick_size same-direction, 2x brick_size on a reversal).
func (c *RenkoConsolidator) tryEmit(price decimal.Decimal, t time.Time) (domain.BaseData, bool) {
	up := price.Sub(c.lastClose)
	down := c.lastClose.Sub(price)

	switch c.direction {
	case renkoDown:
		if up.GreaterThanOrEqual(c.brickSize.Mul(decimal.NewFromInt(2))) {
			return c.emit(renkoUp, t), true
		}
		if down.GreaterThanOrEqual(c.brickSize) {
			return c.emit(renkoDown, t), true
		}
	default: // renkoNone, renkoUp
		if up.GreaterThanOrEqual(c.brickSize) {
			return c.emit(renkoUp, t), true
		}
		threshold := c.brickSize
		if c.direction == renkoUp {
			threshold = c.brickSize.Mul(decimal.NewFromInt(2))
		}
		if down.GreaterThanOrEqual(threshold) {
			return c.emit(renkoDown, t), true
		}
	}
	return nil, false
}

func (c *RenkoConsolidator) emit(dir renkoDirection, t time.Time) domain.BaseData {
	open := c.lastClose
	var close decimal.Decimal
	if dir == renkoUp {
		close = open.Add(c.brickSize)
	} else {
		close = open.Sub(c.brickSize)
	}
	c.lastClose = close
	c.direction = dir

	brick := &domain.Candle{
		Symbol_:     c.sub.Symbol,
		Open:        open,
		High:        decimal.Max(open, close),
		Low:         decimal.Min(open, close),
		Close:       close,
		Range:       c.brickSize,
		Time:        t,
		Resolution_: c.sub.Resolution,
		Closed:      true,
		Type:        domain.CandleType{Kind: domain.CandleRenko, BrickSize: c.brickSize},
	}
	c.history.Add(brick)
	return brick
}

var _ Consolidator = (*RenkoConsolidator)(nil)
