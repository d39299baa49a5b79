package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/fundforge/fundforge/internal/domain"
)

func TestWarmupFeedsHistoricalDataInOrder(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), Resolution: domain.Minutes(5), BaseDataType: domain.CandleData}
	cons := NewTimeCandleConsolidator(sub, 10)

	to := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	var pulled []domain.BaseData
	pull := func(ctx context.Context, sym domain.Symbol, res domain.Resolution, bdt domain.BaseDataType, from, t time.Time) ([]domain.BaseData, error) {
		pulled = []domain.BaseData{
			oneMinuteCandle(0, 100, 100, 100, 100, 1),
			oneMinuteCandle(1, 100, 100, 100, 100, 1),
		}
		return pulled, nil
	}

	if err := Warmup(context.Background(), cons, domain.Minutes(1), domain.CandleData, to, 2, pull); err != nil {
		t.Fatal(err)
	}
	if cons.history.Len() != 0 {
		t.Fatalf("two candles within the same bucket shouldn't close a bar yet, history len = %d", cons.history.Len())
	}
	cur, ok := cons.Current()
	if !ok {
		t.Fatal("expected an open bar after warmup")
	}
	if cur.(*domain.Candle).Volume.IsZero() {
		t.Error("expected accumulated volume from warmup data")
	}
}
