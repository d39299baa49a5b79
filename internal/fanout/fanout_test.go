package fanout

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/domain"
)

func testSymbol() domain.Symbol {
	return domain.Symbol{Name: "BTC-USD", MarketType: domain.Crypto(), Vendor: "coinbasefix"}
}

func testTick() *domain.Tick {
	return &domain.Tick{Symbol_: testSymbol(), Time: time.Now()}
}

func TestSubscribeFirstCallerOpensVendorSubscription(t *testing.T) {
	var calls int
	m := NewManager(
		func(PrimaryFeedKey) error { calls++; return nil },
		func(PrimaryFeedKey) {},
		zerolog.Nop(),
	)
	key := KeyFor(testTick().Subscription())

	if _, err := m.Subscribe("strategyA", key); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Subscribe("strategyB", key); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("vendor subscribe called %d times, want 1", calls)
	}
	if got := m.ReceiverCount(key); got != 2 {
		t.Errorf("ReceiverCount = %d, want 2", got)
	}
}

func TestSubscribeVendorFailureTearsDown(t *testing.T) {
	m := NewManager(
		func(PrimaryFeedKey) error { return errors.New("boom") },
		func(PrimaryFeedKey) {},
		zerolog.Nop(),
	)
	key := KeyFor(testTick().Subscription())

	if _, err := m.Subscribe("strategyA", key); err == nil {
		t.Fatal("expected error")
	}
	if got := m.ReceiverCount(key); got != 0 {
		t.Errorf("ReceiverCount after failed subscribe = %d, want 0", got)
	}
}

func TestUnsubscribeOnlyTearsDownOnLastReceiver(t *testing.T) {
	var unsubCalls int
	m := NewManager(
		func(PrimaryFeedKey) error { return nil },
		func(PrimaryFeedKey) { unsubCalls++ },
		zerolog.Nop(),
	)
	key := KeyFor(testTick().Subscription())

	m.Subscribe("strategyA", key)
	m.Subscribe("strategyB", key)

	m.Unsubscribe("strategyA", key)
	if unsubCalls != 0 {
		t.Fatal("should not unsubscribe while strategyB is still live")
	}
	m.Unsubscribe("strategyB", key)
	if unsubCalls != 1 {
		t.Errorf("unsubCalls = %d, want 1", unsubCalls)
	}
	if got := m.ReceiverCount(key); got != 0 {
		t.Errorf("ReceiverCount = %d, want 0", got)
	}
}

func TestPublishFanOutToAllReceivers(t *testing.T) {
	m := NewManager(func(PrimaryFeedKey) error { return nil }, func(PrimaryFeedKey) {}, zerolog.Nop())
	key := KeyFor(testTick().Subscription())

	ra, _ := m.Subscribe("strategyA", key)
	rb, _ := m.Subscribe("strategyB", key)

	tick := testTick()
	m.Publish(tick)

	select {
	case got := <-ra.C:
		if got != domain.BaseData(tick) {
			t.Error("strategyA got wrong data")
		}
	default:
		t.Fatal("strategyA received nothing")
	}
	select {
	case <-rb.C:
	default:
		t.Fatal("strategyB received nothing")
	}
}

func TestPublishDropsSlowReceiver(t *testing.T) {
	m := NewManager(func(PrimaryFeedKey) error { return nil }, func(PrimaryFeedKey) {}, zerolog.Nop())
	key := KeyFor(testTick().Subscription())
	m.Subscribe("strategyA", key)

	for i := 0; i < receiverQueueDepth+10; i++ {
		m.Publish(testTick())
	}

	if got := m.ReceiverCount(key); got != 0 {
		t.Errorf("ReceiverCount after overflow = %d, want 0 (dropped)", got)
	}
}
