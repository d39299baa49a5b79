package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/subscription"
	"github.com/fundforge/fundforge/internal/vendor"
)

type fakeTickAdapter struct{}

func (fakeTickAdapter) Name() string                                      { return "fake" }
func (fakeTickAdapter) Symbols(domain.MarketType) ([]domain.Symbol, error) { return nil, nil }
func (fakeTickAdapter) Markets() ([]domain.MarketType, error)             { return nil, nil }
func (fakeTickAdapter) Resolutions(domain.MarketType) ([]domain.SubscriptionResolutionType, error) {
	return []domain.SubscriptionResolutionType{{Resolution: domain.Ticks(1), BaseDataType: domain.TickData}}, nil
}
func (fakeTickAdapter) BaseDataTypes() ([]domain.BaseDataType, error) { return nil, nil }
func (fakeTickAdapter) DecimalAccuracy(domain.Symbol) (uint32, error) { return 4, nil }
func (fakeTickAdapter) TickSize(domain.Symbol) (decimal.Decimal, error) {
	return decimal.NewFromFloat(0.0001), nil
}
func (fakeTickAdapter) Subscribe(vendor.StreamID, domain.DataSubscription) vendor.SubscribeResult {
	return vendor.SubscribeResult{Accepted: true}
}
func (fakeTickAdapter) Unsubscribe(vendor.StreamID, domain.DataSubscription) {}
func (fakeTickAdapter) HistoricalPull(context.Context, domain.DataSubscription, time.Time, time.Time, func(domain.BaseData)) (vendor.Progress, error) {
	return vendor.Progress{}, nil
}
func (fakeTickAdapter) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderUpdateEvent, error) {
	return domain.OrderUpdateEvent{}, nil
}
func (fakeTickAdapter) CancelOrder(context.Context, string, string) error { return nil }
func (fakeTickAdapter) ModifyOrder(context.Context, domain.OrderRequest) (domain.OrderUpdateEvent, error) {
	return domain.OrderUpdateEvent{}, nil
}
func (fakeTickAdapter) FlattenAllFor(context.Context, string, domain.Symbol) error { return nil }

var _ vendor.Adapter = fakeTickAdapter{}

type fakeStore struct {
	sym  domain.Symbol
	base time.Time
}

func (f *fakeStore) BulkRange(subs []domain.DataSubscription, from, to time.Time) (map[int64]domain.TimeSlice, error) {
	out := make(map[int64]domain.TimeSlice)
	times := []time.Time{f.base.Add(500 * time.Millisecond), f.base.Add(1500 * time.Millisecond)}
	for _, t := range times {
		if t.Before(from) || t.After(to) {
			continue
		}
		tick := &domain.Tick{Symbol_: f.sym, Price: decimal.NewFromInt(1), Time: t}
		out[t.UnixNano()] = domain.TimeSlice{tick}
	}
	return out, nil
}

func TestRunBacktestEmitsBufferedSlices(t *testing.T) {
	sym := domain.Symbol{Name: "EUR-USD", MarketType: domain.Forex(), Vendor: "fake"}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	h := subscription.NewHandler(fakeTickAdapter{}, domain.Backtest, nil, nil, nil, func() time.Time { return base }, zerolog.Nop())
	sub := domain.DataSubscription{Symbol: sym, Resolution: domain.Ticks(1), BaseDataType: domain.TickData, MarketType: domain.Forex()}
	if err := h.Subscribe(context.Background(), sub); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	store := &fakeStore{sym: sym, base: base}
	var events []StrategyEvent
	cfg := Config{BufferDuration: time.Second}
	d := New(h, nil, store, cfg, func(ev StrategyEvent) { events = append(events, ev) }, zerolog.Nop())

	if err := d.RunBacktest(context.Background(), base, base.Add(2*time.Second)); err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}

	var sliceEvents []StrategyEvent
	for _, ev := range events {
		if ev.Kind == EventTimeSlice && len(ev.TimeSlice) > 0 {
			sliceEvents = append(sliceEvents, ev)
		}
	}
	if len(sliceEvents) != 2 {
		t.Fatalf("got %d non-empty TimeSlice events, want 2 (one per buffer step): %+v", len(sliceEvents), events)
	}
	if len(sliceEvents[0].TimeSlice) != 1 || len(sliceEvents[1].TimeSlice) != 1 {
		t.Fatalf("expected exactly one tick per buffered step, got %v and %v", sliceEvents[0].TimeSlice, sliceEvents[1].TimeSlice)
	}
}

func TestRunWarmupEmitsCompletion(t *testing.T) {
	sym := domain.Symbol{Name: "EUR-USD", MarketType: domain.Forex(), Vendor: "fake"}
	now := time.Date(2024, 3, 1, 0, 0, 2, 0, time.UTC)
	base := now.Add(-2 * time.Second)

	h := subscription.NewHandler(fakeTickAdapter{}, domain.Backtest, nil, nil, nil, func() time.Time { return now }, zerolog.Nop())
	sub := domain.DataSubscription{Symbol: sym, Resolution: domain.Ticks(1), BaseDataType: domain.TickData, MarketType: domain.Forex()}
	if err := h.Subscribe(context.Background(), sub); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	store := &fakeStore{sym: sym, base: base}
	var events []StrategyEvent
	cfg := Config{BufferDuration: time.Second, WarmupWindow: 2 * time.Second}
	d := New(h, nil, store, cfg, func(ev StrategyEvent) { events = append(events, ev) }, zerolog.Nop())

	if err := d.RunWarmup(context.Background(), now); err != nil {
		t.Fatalf("RunWarmup: %v", err)
	}

	if len(events) == 0 || events[len(events)-1].Kind != EventWarmUpComplete {
		t.Fatalf("expected last event to be WarmUpComplete, got %+v", events)
	}
}

// TestLiveTickerRunsWithoutSubscriptions exercises the timer loop itself:
// with no registered primary, Feed'd data has nowhere to route and each
// tick's dispatch legitimately produces nothing to emit. The test's job
// is to confirm the loop ticks and shuts down cleanly on ctx cancel.
func TestLiveTickerRunsWithoutSubscriptions(t *testing.T) {
	sym := domain.Symbol{Name: "EUR-USD", MarketType: domain.Forex(), Vendor: "fake"}
	h := subscription.NewHandler(fakeTickAdapter{}, domain.Live, nil, nil, nil, time.Now, zerolog.Nop())

	events := make(chan StrategyEvent, 4)
	cfg := Config{BufferDuration: 10 * time.Millisecond}
	d := New(h, nil, &fakeStore{sym: sym, base: time.Now()}, cfg, func(ev StrategyEvent) { events <- ev }, zerolog.Nop())

	lt := NewLiveTicker(d)
	lt.Feed(&domain.Tick{Symbol_: sym, Price: decimal.NewFromInt(1), Time: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() { lt.Run(ctx); close(done) }()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("LiveTicker.Run did not return after context cancellation")
	}
	close(events)
	for range events {
	}
}
