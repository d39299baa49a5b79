package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	id := NewSessionID()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := s.RecordSessionStart(id, "acct-1", "Default", "127.0.0.1:5555", start); err != nil {
		t.Fatalf("RecordSessionStart: %v", err)
	}

	sessions, err := s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id || sessions[0].DisconnectedAt != nil {
		t.Fatalf("unexpected session rows: %+v", sessions)
	}

	end := start.Add(time.Hour)
	if err := s.RecordSessionEnd(id, end); err != nil {
		t.Fatalf("RecordSessionEnd: %v", err)
	}
	sessions, err = s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions after end: %v", err)
	}
	if sessions[0].DisconnectedAt == nil {
		t.Fatal("expected DisconnectedAt to be set after RecordSessionEnd")
	}
}

func TestRecordSubscriptionAndOrder(t *testing.T) {
	s := openTestStore(t)
	id := NewSessionID()
	now := time.Now()

	sym := domain.Symbol{Name: "EUR-USD", MarketType: domain.Forex(), Vendor: "oanda"}
	sub := domain.DataSubscription{Symbol: sym, Resolution: domain.Minutes(1), BaseDataType: domain.CandleData, MarketType: domain.Forex()}

	if err := s.RecordSubscription(id, sub, Subscribed, now); err != nil {
		t.Fatalf("RecordSubscription: %v", err)
	}
	if err := s.RecordSubscription(id, sub, Unsubscribed, now.Add(time.Minute)); err != nil {
		t.Fatalf("RecordSubscription unsubscribe: %v", err)
	}

	count, err := s.SubscriptionEventCount(id)
	if err != nil {
		t.Fatalf("SubscriptionEventCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	req := domain.OrderRequest{
		Action:   domain.OrderCreate,
		OrderID:  "ord-1",
		Account:  "acct-1",
		Symbol:   sym,
		Quantity: decimal.NewFromInt(1),
	}
	if err := s.RecordOrder(id, req, domain.OrderFilled, now); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}
}
