package consolidate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

func weekdayHours() TradingHours {
	window := &SessionWindow{Open: 9 * time.Hour, Close: 17 * time.Hour}
	return TradingHours{
		Location: time.UTC,
		Sessions: map[time.Weekday]*SessionWindow{
			time.Monday:    window,
			time.Tuesday:   window,
			time.Wednesday: window,
			time.Thursday:  window,
			time.Friday:    window,
		},
	}
}

func TestDailyConsolidatorPassesThroughOutsideSession(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), Resolution: domain.Days(1), BaseDataType: domain.CandleData}
	cons := NewDailyConsolidator(sub, weekdayHours(), 1, 10)

	// 2026-01-05 is a Monday; 03:00 UTC is outside the 09:00-17:00 session.
	outside := time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
	res := cons.Update(testTick(100, outside))
	if res.Open == nil || res.Closed != nil {
		t.Fatal("outside-session data should pass through as open_data only")
	}
	if _, ok := cons.Current(); ok {
		t.Error("no bar should be forming from out-of-session data")
	}
}

func TestDailyConsolidatorClosesAtSessionEnd(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), Resolution: domain.Days(1), BaseDataType: domain.CandleData}
	cons := NewDailyConsolidator(sub, weekdayHours(), 1, 10)

	mon := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cons.Update(testTick(100, mon))
	cons.Update(testTick(110, mon.Add(2*time.Hour)))

	tue := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	res := cons.Update(testTick(120, tue))
	if res.Closed == nil {
		t.Fatal("crossing into Tuesday's session should close Monday's bar")
	}
	closed := res.Closed.(*domain.Candle)
	if !closed.High.Equal(decimal.NewFromInt(110)) {
		t.Errorf("closed High = %s, want 110", closed.High)
	}
}
