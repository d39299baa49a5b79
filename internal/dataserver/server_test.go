package dataserver

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/archive"
	"github.com/fundforge/fundforge/internal/codec"
	"github.com/fundforge/fundforge/internal/config"
	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/transport"
	"github.com/fundforge/fundforge/internal/vendor"
	"github.com/fundforge/fundforge/internal/vendor/simulated"
)

func testSymbol() domain.Symbol {
	return domain.Symbol{Name: "EUR-USD", MarketType: domain.Forex(), Vendor: "simulated"}
}

// harness wires one simulated-vendor Server to an in-process client
// connection over net.Pipe, matching internal/transport's own test
// style (no real TLS listener needed to exercise the dispatcher).
type harness struct {
	server  *Server
	adapter *simulated.Adapter
	client  *transport.Conn
	done    chan struct{}
}

func newHarness(t *testing.T, instruments *config.InstrumentTable, rates config.ExchangeRateTable) *harness {
	t.Helper()
	log := zerolog.Nop()

	sym := testSymbol()
	info := domain.SymbolInfo{
		Symbol:          sym,
		TickSize:        decimal.NewFromFloat(0.0001),
		ValuePerTick:    decimal.NewFromInt(1),
		DecimalAccuracy: 4,
		PnlCurrency:     "USD",
	}
	adapter := simulated.New(archive.Open(t.TempDir(), log), map[string]domain.SymbolInfo{sym.Key(): info})

	var a vendor.Adapter = adapter
	mgr := NewFanoutManager("simulated", func() vendor.Adapter { return a }, log)

	srv := NewServer(archive.Open(t.TempDir(), log), instruments, rates, nil, nil, log)
	srv.RegisterVendor("simulated", adapter, mgr)

	clientRaw, serverRaw := net.Pipe()
	connType := codec.ConnectionType{Kind: codec.ConnVendor, Vendor: "simulated"}
	client := transport.NewConn(clientRaw, connType, log)
	serverConn := transport.NewConn(serverRaw, connType, log)

	done := make(chan struct{})
	go func() {
		srv.HandleConn(context.Background(), connType, serverConn, "pipe")
		close(done)
	}()
	t.Cleanup(func() { client.Close() })

	return &harness{server: srv, adapter: adapter, client: client, done: done}
}

func (h *harness) call(t *testing.T, req codec.DataServerRequest) codec.DataServerResponse {
	t.Helper()
	req.CallbackID = 1
	payload, err := codec.MarshalRequest(req)
	if err != nil {
		t.Fatalf("MarshalRequest: %v", err)
	}
	if ok := h.client.Send(payload); !ok {
		t.Fatalf("Send returned false")
	}

	select {
	case frame := <-h.client.Frames:
		resp, err := codec.UnmarshalResponse(frame)
		if err != nil {
			t.Fatalf("UnmarshalResponse: %v", err)
		}
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return codec.DataServerResponse{}
	}
}

func baseInstrumentTable(t *testing.T) *config.InstrumentTable {
	t.Helper()
	path := t.TempDir() + "/instruments.toml"
	contents := `
[[instruments]]
symbol_name = "EUR-USD"
vendor = "simulated"
market = "forex"
value_per_tick = 1.0
pnl_currency = "USD"
margin_intraday = 50
margin_overnight = 100
commission_rate = 0.02
commission_min = 1.0
commission_currency = "USD"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write instruments.toml: %v", err)
	}
	table, err := config.LoadInstrumentTable(path)
	if err != nil {
		t.Fatalf("LoadInstrumentTable: %v", err)
	}
	return table
}

func TestServerCapabilityRequests(t *testing.T) {
	h := newHarness(t, baseInstrumentTable(t), config.ExchangeRateTable{})
	sym := testSymbol()

	resp := h.call(t, codec.DataServerRequest{Kind: codec.SymbolInfoReq, Symbol: sym})
	if resp.Err != "" {
		t.Fatalf("SymbolInfoReq error: %s", resp.Err)
	}
	if !resp.SymbolInfo.ValuePerTick.Equal(decimal.NewFromInt(1)) {
		t.Errorf("ValuePerTick = %s, want 1", resp.SymbolInfo.ValuePerTick)
	}

	resp = h.call(t, codec.DataServerRequest{Kind: codec.CommissionInfoReq, Symbol: sym})
	if resp.Err != "" {
		t.Fatalf("CommissionInfoReq error: %s", resp.Err)
	}
	if !resp.CommissionInfo.Apply(decimal.NewFromInt(100)).Equal(decimal.NewFromFloat(2)) {
		t.Errorf("commission on 100 contracts = %s, want 2", resp.CommissionInfo.Apply(decimal.NewFromInt(100)))
	}

	resp = h.call(t, codec.DataServerRequest{Kind: codec.IntradayMarginRequired, Symbol: sym, Quantity: 2})
	if resp.Err != "" {
		t.Fatalf("IntradayMarginRequired error: %s", resp.Err)
	}
	margin, err := decimal.NewFromString(resp.MarginRequired)
	if err != nil || !margin.Equal(decimal.NewFromInt(100)) {
		t.Errorf("IntradayMarginRequired = %s, want 100", resp.MarginRequired)
	}

	resp = h.call(t, codec.DataServerRequest{Kind: codec.CommissionInfoReq, Symbol: domain.Symbol{Name: "NOPE"}})
	if resp.Err == "" {
		t.Error("expected error for unconfigured symbol")
	}
}

func TestServerPaperAccountInit(t *testing.T) {
	h := newHarness(t, baseInstrumentTable(t), config.ExchangeRateTable{})

	resp := h.call(t, codec.DataServerRequest{
		Kind:     codec.PaperAccountInit,
		Account:  "acct-1",
		Quantity: 10000,
		CcyTo:    domain.Currency("USD"),
	})
	if resp.Err != "" {
		t.Fatalf("PaperAccountInit error: %s", resp.Err)
	}
	if resp.AccountInfo.Brokerage != "simulated" {
		t.Errorf("Brokerage = %q, want simulated", resp.AccountInfo.Brokerage)
	}
	if !resp.AccountInfo.CashValue.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("CashValue = %s, want 10000", resp.AccountInfo.CashValue)
	}
}

func TestServerExchangeRate(t *testing.T) {
	rates := config.ExchangeRateTable{Rates: []config.ExchangeRateEntry{{From: "EUR", To: "USD", Rate: 1.1}}}
	h := newHarness(t, baseInstrumentTable(t), rates)

	resp := h.call(t, codec.DataServerRequest{Kind: codec.ExchangeRateReq, CcyFrom: "EUR", CcyTo: "USD"})
	if resp.Err != "" {
		t.Fatalf("ExchangeRateReq error: %s", resp.Err)
	}
	if !resp.ExchangeRate.Rate.Equal(decimal.NewFromFloat(1.1)) {
		t.Errorf("Rate = %s, want 1.1", resp.ExchangeRate.Rate)
	}
}

func TestServerSubscribeUnsubscribeAndPublish(t *testing.T) {
	h := newHarness(t, baseInstrumentTable(t), config.ExchangeRateTable{})
	sym := testSymbol()
	sub := domain.DataSubscription{Symbol: sym, Resolution: domain.Ticks(1), BaseDataType: domain.TickData, MarketType: sym.MarketType}

	payload, err := codec.MarshalRequest(codec.DataServerRequest{Kind: codec.StreamSubscribe, Subscription: sub})
	if err != nil {
		t.Fatalf("MarshalRequest: %v", err)
	}
	if ok := h.client.Send(payload); !ok {
		t.Fatal("Send returned false")
	}

	ack := h.readPush(t)
	if ack.SubscribeAck == nil || !ack.SubscribeAck.Success {
		t.Fatalf("expected successful SubscribeAck, got %+v", ack.SubscribeAck)
	}

	h.server.mu.RLock()
	binding := h.server.vendors["simulated"]
	h.server.mu.RUnlock()
	binding.fanout.Publish(&domain.Tick{Symbol_: sym, Price: decimal.NewFromFloat(1.2345), Volume: decimal.NewFromInt(1), Time: time.Now()})

	data := h.readPush(t)
	if len(data.DataUpdates) != 1 {
		t.Fatalf("expected one pushed tick, got %d", len(data.DataUpdates))
	}

	unsubPayload, err := codec.MarshalRequest(codec.DataServerRequest{Kind: codec.StreamUnsubscribe, Subscription: sub})
	if err != nil {
		t.Fatalf("MarshalRequest: %v", err)
	}
	if ok := h.client.Send(unsubPayload); !ok {
		t.Fatal("Send returned false")
	}
	unsubAck := h.readPush(t)
	if unsubAck.UnsubscribeAck == nil || !unsubAck.UnsubscribeAck.Success {
		t.Fatalf("expected successful UnsubscribeAck, got %+v", unsubAck.UnsubscribeAck)
	}
}

func (h *harness) readPush(t *testing.T) codec.DataServerResponse {
	t.Helper()
	select {
	case frame := <-h.client.Frames:
		resp, err := codec.UnmarshalResponse(frame)
		if err != nil {
			t.Fatalf("UnmarshalResponse: %v", err)
		}
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed response")
		return codec.DataServerResponse{}
	}
}

func TestServerOrderRequestRoundTrip(t *testing.T) {
	h := newHarness(t, baseInstrumentTable(t), config.ExchangeRateTable{})
	sym := testSymbol()

	payload, err := codec.MarshalRequest(codec.DataServerRequest{
		Kind: codec.OrderRequestMsg,
		Order: domain.OrderRequest{
			Action:   domain.OrderCreate,
			Account:  "acct-1",
			Symbol:   sym,
			Quantity: decimal.NewFromInt(1),
		},
	})
	if err != nil {
		t.Fatalf("MarshalRequest: %v", err)
	}
	if ok := h.client.Send(payload); !ok {
		t.Fatal("Send returned false")
	}

	resp := h.readPush(t)
	if resp.OrderUpdate == nil {
		t.Fatal("expected an OrderUpdate push")
	}
	if resp.OrderUpdate.Status != domain.OrderAccepted {
		t.Errorf("Status = %s, want Accepted", resp.OrderUpdate.Status)
	}
}
