package consolidate

import (
	"context"
	"time"

	"github.com/fundforge/fundforge/internal/domain"
)

// tickWarmupLookback bounds how far back a Ticks(n)-keyed consolidator
// looks for warmup data: tick counts have no duration equivalent, so
// there is no way to derive a "go back N bars" window the way a
// duration-based resolution can.
const tickWarmupLookback = 24 * time.Hour

// RangeFunc pulls historical primary data for one (symbol, resolution,
// base data type) window — the archive's bulk range query, supplied by
// the caller so this package never imports internal/archive directly.
type RangeFunc func(ctx context.Context, sym domain.Symbol, res domain.Resolution, bdt domain.BaseDataType, from, to time.Time) ([]domain.BaseData, error)

// Warmup pulls enough historical primary data to produce n closed
// output bars and feeds it through cons in order (spec §4.H "warmup(...)
// pulls historical data from the archive sufficient to produce n closed
// output bars, feeds them in order, and returns the populated rolling
// window plus the consolidator"). primaryRes/primaryType name the
// primary feed cons actually consumes (e.g. Ticks(1)/Ticks for a
// CandleStickConsolidator fed from trade prints).
func Warmup(ctx context.Context, cons Consolidator, primaryRes domain.Resolution, primaryType domain.BaseDataType, to time.Time, n int, pull RangeFunc) error {
	sub := cons.Subscription()

	var from time.Time
	if sub.Resolution.Kind == domain.ResTicks {
		from = to.Add(-tickWarmupLookback)
	} else {
		from = to.Add(-sub.Resolution.AsDuration() * time.Duration(n)).Add(-4 * 24 * time.Hour)
	}

	data, err := pull(ctx, sub.Symbol, primaryRes, primaryType, from, to)
	if err != nil {
		return err
	}
	for _, d := range data {
		cons.Update(d)
	}
	return nil
}
