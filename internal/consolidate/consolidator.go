// Package consolidate builds derived bars (time-candles, tick-count bars,
// Heikin-Ashi, Renko, daily-with-session-hours) out of a primary
// BaseData stream, per spec §4.H.
package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

const defaultHistoryToRetain = 500

// Result is what Update returns: the still-open bar the new datum fed
// into, and the bar it closed (if the new datum crossed a boundary).
type Result struct {
	Open   domain.BaseData
	Closed domain.BaseData // nil unless a bar closed on this update
}

// Consolidator is the shared shape of every bar builder in this package
// (spec §4.H): "update", "update_time", "subscription", "history",
// "current", "index".
type Consolidator interface {
	Update(data domain.BaseData) Result
	UpdateTime(now time.Time) []domain.BaseData
	Subscription() domain.DataSubscription
	History() *RollingWindow[domain.BaseData]
	Current() (domain.BaseData, bool)
	Index(k int) (domain.BaseData, bool)
}

// bucketEnd returns the close-time boundary of the resolution-duration
// bucket that a datum with close time t belongs to (spec §4.H "Bar
// boundary = floor(close_time, resolution_duration)"): the smallest
// multiple of the bucket duration that is >= t. A datum landing exactly
// on a multiple closes out that bucket rather than opening the next one
// — it is the last print of the bar ending at that instant, not the
// first print of the one after it.
func bucketEnd(res domain.Resolution, t time.Time) time.Time {
	d := res.AsDuration()
	if d <= 0 {
		return t
	}
	floor := t.Truncate(d)
	if floor.Equal(t) {
		return t
	}
	return floor.Add(d)
}

func roundToTick(v, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return v
	}
	return v.DivRound(tickSize, 0).Mul(tickSize)
}

// ohlcvOf extracts a uniform (open, high, low, close, volume, closed) view
// from any primary BaseData variant a consolidator can legally receive,
// mirroring the per-variant match in the teacher's own consolidator core.
func ohlcvOf(data domain.BaseData) (o, h, l, c, v decimal.Decimal) {
	switch d := data.(type) {
	case *domain.Tick:
		return d.Price, d.Price, d.Price, d.Price, d.Volume
	case *domain.Quote:
		mid := d.Bid.Add(d.Ask).DivRound(decimal.NewFromInt(2), 8)
		return mid, mid, mid, mid, decimal.Zero
	case *domain.Candle:
		return d.Open, d.High, d.Low, d.Close, d.Volume
	case *domain.QuoteBar:
		return d.BidOpen, d.BidHigh, d.BidLow, d.BidClose, d.Volume
	default:
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	}
}
