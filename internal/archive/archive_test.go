package archive

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

func testSymbol() domain.Symbol {
	return domain.Symbol{Name: "EUR-USD", MarketType: domain.Forex(), Vendor: "oanda"}
}

func tickAt(sym domain.Symbol, hh, mm int, price string) *domain.Tick {
	return &domain.Tick{
		Symbol_: sym,
		Price:   decimal.RequireFromString(price),
		Volume:  decimal.NewFromInt(1),
		Time:    time.Date(2024, 3, 15, hh, mm, 0, 0, time.UTC),
	}
}

// TestArchivePartialDaySaveAndOverwrite exercises spec §8 scenario 6:
// two saves to the same day file merge into three records, then a third
// save overwrites the 12:00 record instead of duplicating it.
func TestArchivePartialDaySaveAndOverwrite(t *testing.T) {
	dir := t.TempDir()
	a := Open(dir, zerolog.Nop())
	defer a.Close()

	sym := testSymbol()
	first := []domain.BaseData{
		tickAt(sym, 9, 30, "1.1000"),
		tickAt(sym, 16, 0, "1.1050"),
	}
	if err := a.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := []domain.BaseData{tickAt(sym, 12, 0, "1.1020")}
	if err := a.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	from := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	got, err := a.Range(sym, domain.Ticks(1), domain.TickData, from, to)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].CloseTime().After(got[i].CloseTime()) {
			t.Fatalf("records not sorted by close time at index %d", i)
		}
	}

	// Overwrite the 12:00 record; the archive should still report exactly 3
	// records, with the new price, not a duplicate.
	overwrite := []domain.BaseData{tickAt(sym, 12, 0, "1.1099")}
	if err := a.Save(overwrite); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, err = a.Range(sym, domain.Ticks(1), domain.TickData, from, to)
	if err != nil {
		t.Fatalf("Range after overwrite: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records after overwrite, want 3", len(got))
	}
	noon := got[1].(*domain.Tick)
	if !noon.Price.Equal(decimal.RequireFromString("1.1099")) {
		t.Errorf("overwritten price = %s, want 1.1099", noon.Price)
	}
}

func TestArchiveRangeFiltersToWindow(t *testing.T) {
	dir := t.TempDir()
	a := Open(dir, zerolog.Nop())
	defer a.Close()

	sym := testSymbol()
	if err := a.Save([]domain.BaseData{
		tickAt(sym, 8, 0, "1.10"),
		tickAt(sym, 12, 0, "1.11"),
		tickAt(sym, 20, 0, "1.12"),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	from := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)
	got, err := a.Range(sym, domain.Ticks(1), domain.TickData, from, to)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
}

func TestArchiveEarliestLatest(t *testing.T) {
	dir := t.TempDir()
	a := Open(dir, zerolog.Nop())
	defer a.Close()

	sym := testSymbol()
	day1 := tickAt(sym, 9, 0, "1.10")
	day2 := &domain.Tick{
		Symbol_: sym,
		Price:   decimal.RequireFromString("1.12"),
		Volume:  decimal.NewFromInt(1),
		Time:    time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC),
	}
	if err := a.Save([]domain.BaseData{day1, day2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	earliest, err := a.Earliest(sym, domain.Ticks(1), domain.TickData)
	if err != nil || earliest == nil {
		t.Fatalf("Earliest: %v, %v", earliest, err)
	}
	if !earliest.Equal(day1.Time) {
		t.Errorf("Earliest = %v, want %v", earliest, day1.Time)
	}

	latest, err := a.Latest(sym, domain.Ticks(1), domain.TickData)
	if err != nil || latest == nil {
		t.Fatalf("Latest: %v, %v", latest, err)
	}
	if !latest.Equal(day2.Time) {
		t.Errorf("Latest = %v, want %v", latest, day2.Time)
	}
}

func TestArchiveBulkRangeMergesByTimestamp(t *testing.T) {
	dir := t.TempDir()
	a := Open(dir, zerolog.Nop())
	defer a.Close()

	eurusd := testSymbol()
	gbpusd := domain.Symbol{Name: "GBP-USD", MarketType: domain.Forex(), Vendor: "oanda"}
	sameTime := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	tick1 := &domain.Tick{Symbol_: eurusd, Price: decimal.RequireFromString("1.10"), Time: sameTime}
	tick2 := &domain.Tick{Symbol_: gbpusd, Price: decimal.RequireFromString("1.27"), Time: sameTime}
	if err := a.Save([]domain.BaseData{tick1, tick2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	subs := []domain.DataSubscription{
		{Symbol: eurusd, Resolution: domain.Ticks(1), BaseDataType: domain.TickData},
		{Symbol: gbpusd, Resolution: domain.Ticks(1), BaseDataType: domain.TickData},
	}
	from := sameTime.Add(-time.Hour)
	to := sameTime.Add(time.Hour)
	merged, err := a.BulkRange(subs, from, to)
	if err != nil {
		t.Fatalf("BulkRange: %v", err)
	}
	slice, ok := merged[sameTime.UnixNano()]
	if !ok {
		t.Fatal("expected a TimeSlice at sameTime")
	}
	if len(slice) != 2 {
		t.Fatalf("got %d records in merged TimeSlice, want 2", len(slice))
	}
}
