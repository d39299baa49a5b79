package consolidate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

func testSymbol() domain.Symbol {
	return domain.Symbol{Name: "ES", MarketType: domain.Futures(domain.ExchangeCME), Vendor: "sim"}
}

func oneMinuteCandle(minute int, o, h, l, c, v int64) *domain.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Candle{
		Symbol_:     testSymbol(),
		Open:        decimal.NewFromInt(o),
		High:        decimal.NewFromInt(h),
		Low:         decimal.NewFromInt(l),
		Close:       decimal.NewFromInt(c),
		Volume:      decimal.NewFromInt(v),
		Time:        base.Add(time.Duration(minute+1) * time.Minute),
		Resolution_: domain.Minutes(1),
		Closed:      true,
	}
}

// TestTenOneMinuteCandlesProduceTwoFiveMinuteCandles mirrors the spec's
// down-sampling scenario: ten 1-minute candles at minutes 0..9, each
// O=H=L=C=100, V=1, fed into a 5-minute consolidator, expect two closed
// 5m candles at minutes 0 and 5, each O=H=L=C=100, V=5.
func TestTenOneMinuteCandlesProduceTwoFiveMinuteCandles(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), Resolution: domain.Minutes(5), BaseDataType: domain.CandleData}
	cons := NewTimeCandleConsolidator(sub, 10)

	var closedCount int
	for m := 0; m < 10; m++ {
		res := cons.Update(oneMinuteCandle(m, 100, 100, 100, 100, 1))
		if res.Closed != nil {
			closedCount++
			closed := res.Closed.(*domain.Candle)
			if !closed.Volume.Equal(decimal.NewFromInt(5)) {
				t.Errorf("closed bar %d volume = %s, want 5", closedCount, closed.Volume)
			}
			if !closed.Open.Equal(decimal.NewFromInt(100)) || !closed.Close.Equal(decimal.NewFromInt(100)) {
				t.Errorf("closed bar %d OHLC not all 100: open=%s close=%s", closedCount, closed.Open, closed.Close)
			}
		}
	}
	if closedCount != 1 {
		t.Fatalf("got %d closed bars mid-stream, want 1 (the second closes only via the 11th datum or UpdateTime)", closedCount)
	}

	flushed := cons.UpdateTime(time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC))
	if len(flushed) != 1 {
		t.Fatalf("UpdateTime flush returned %d bars, want 1", len(flushed))
	}
	last := flushed[0].(*domain.Candle)
	if !last.Volume.Equal(decimal.NewFromInt(5)) {
		t.Errorf("final bar volume = %s, want 5", last.Volume)
	}
}

func TestTimeCandleHighLowTracksExtremes(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), Resolution: domain.Minutes(1), BaseDataType: domain.CandleData}
	cons := NewTimeCandleConsolidator(sub, 10)

	cons.Update(oneMinuteCandle(0, 100, 105, 95, 102, 1))
	res := cons.Update(oneMinuteCandle(0, 102, 110, 90, 103, 1))
	open := res.Open.(*domain.Candle)
	if !open.High.Equal(decimal.NewFromInt(110)) {
		t.Errorf("High = %s, want 110", open.High)
	}
	if !open.Low.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Low = %s, want 90", open.Low)
	}
}
