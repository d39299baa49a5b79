package consolidate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

func quoteAt(bid, ask int64, t time.Time) *domain.Quote {
	return &domain.Quote{
		Symbol_: testSymbol(),
		Bid:     decimal.NewFromInt(bid),
		Ask:     decimal.NewFromInt(ask),
		Time:    t,
	}
}

func TestQuoteBarTracksBothSidesAndCloses(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), Resolution: domain.Minutes(1), BaseDataType: domain.QuoteBarData}
	cons := NewQuoteBarConsolidator(sub, 10)

	base := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC)
	cons.Update(quoteAt(100, 101, base))
	cons.Update(quoteAt(105, 108, base.Add(20*time.Second)))

	res := cons.Update(quoteAt(90, 92, base.Add(90*time.Second)))
	if res.Closed == nil {
		t.Fatal("crossing the minute boundary should close the first bar")
	}
	closed := res.Closed.(*domain.QuoteBar)
	if !closed.BidHigh.Equal(decimal.NewFromInt(105)) {
		t.Errorf("BidHigh = %s, want 105", closed.BidHigh)
	}
	if !closed.AskHigh.Equal(decimal.NewFromInt(108)) {
		t.Errorf("AskHigh = %s, want 108", closed.AskHigh)
	}
}
