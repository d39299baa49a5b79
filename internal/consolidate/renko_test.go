package consolidate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

func TestRenkoEmitsBrickOnBrickSizeMove(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), BaseDataType: domain.CandleData}
	brickSize := decimal.NewFromInt(10)
	cons := NewRenkoConsolidator(sub, brickSize, 10)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := cons.Update(testTick(100, base))
	if seed.Closed != nil {
		t.Fatal("seeding datum should not emit a brick")
	}

	res := cons.Update(testTick(111, base.Add(time.Second)))
	if res.Closed == nil {
		t.Fatal("expected a brick once price moved >= brick_size")
	}
	brick := res.Closed.(*domain.Candle)
	if !brick.Open.Equal(decimal.NewFromInt(100)) || !brick.Close.Equal(decimal.NewFromInt(110)) {
		t.Errorf("brick open/close = %s/%s, want 100/110", brick.Open, brick.Close)
	}
}

func TestRenkoMultipleBricksInOneUpdate(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), BaseDataType: domain.CandleData}
	brickSize := decimal.NewFromInt(10)
	cons := NewRenkoConsolidator(sub, brickSize, 10)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cons.Update(testTick(100, base))
	cons.Update(testTick(135, base.Add(time.Second))) // +35 -> 3 bricks

	if got := cons.History().Len(); got != 3 {
		t.Fatalf("history has %d bricks, want 3", got)
	}
	last, _ := cons.History().Current()
	if !last.(*domain.Candle).Close.Equal(decimal.NewFromInt(130)) {
		t.Errorf("last brick close = %s, want 130", last.(*domain.Candle).Close)
	}
}

func TestRenkoReversalRequiresDoubleBrickSize(t *testing.T) {
	sub := domain.DataSubscription{Symbol: testSymbol(), BaseDataType: domain.CandleData}
	brickSize := decimal.NewFromInt(10)
	cons := NewRenkoConsolidator(sub, brickSize, 10)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cons.Update(testTick(100, base))
	cons.Update(testTick(111, base.Add(time.Second))) // up brick to 110, direction=up

	// Drop by only brick_size (10): not enough to reverse (needs 2x).
	res := cons.Update(testTick(100, base.Add(2*time.Second)))
	if res.Closed != nil {
		t.Fatal("a same-direction-threshold drop should not reverse an up trend")
	}

	// Now drop enough to cross 2x brick_size from 110 (i.e. <= 90).
	res = cons.Update(testTick(89, base.Add(3*time.Second)))
	if res.Closed == nil {
		t.Fatal("expected a reversal brick once price dropped 2x brick_size")
	}
}
