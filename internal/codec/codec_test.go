package codec

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/fundforge/fundforge/internal/domain"
	"github.com/shopspring/decimal"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello fundforge")

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFrame() = %q, want %q", got, payload)
	}
}

func TestFrameRoundTripMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	r := bufio.NewReader(&buf)
	for _, want := range frames {
		got, err := ReadFrame(r)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("ReadFrame() = %q, want %q", got, want)
		}
	}
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	// A length prefix claiming more than MaxFrameSize, no payload behind it.
	if err := WriteFrame(&buf, make([]byte, 0)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	oversized := buf.Bytes()
	oversized[0] = 0xFF // corrupt the high byte of the length to something huge

	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(oversized)))
	if err == nil {
		t.Fatal("expected error reading an oversized frame length")
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	sym := domain.Symbol{Name: "EUR-USD", MarketType: domain.Forex(), Vendor: "oanda"}
	req := DataServerRequest{
		Kind:       HistoricalBaseDataRange,
		CallbackID: 42,
		Symbol:     sym,
		From:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
	}

	payload, err := MarshalRequest(req)
	if err != nil {
		t.Fatalf("MarshalRequest: %v", err)
	}
	got, err := UnmarshalRequest(payload)
	if err != nil {
		t.Fatalf("UnmarshalRequest: %v", err)
	}
	if got.CallbackID != req.CallbackID || got.Symbol != req.Symbol || got.Kind != req.Kind {
		t.Errorf("UnmarshalRequest() = %+v, want %+v", got, req)
	}
}

func TestResponseCarriesTimeSliceAcrossVariants(t *testing.T) {
	sym := domain.Symbol{Name: "BTC-USD", MarketType: domain.Crypto(), Vendor: "bitget"}
	now := time.Now().UTC()
	resp := DataServerResponse{
		DataUpdates: domain.TimeSlice{
			&domain.Tick{Symbol_: sym, Price: decimal.NewFromFloat(50000), Time: now},
			&domain.Candle{Symbol_: sym, Resolution_: domain.Minutes(1), Time: now},
		},
	}

	payload, err := MarshalResponse(resp)
	if err != nil {
		t.Fatalf("MarshalResponse: %v", err)
	}
	got, err := UnmarshalResponse(payload)
	if err != nil {
		t.Fatalf("UnmarshalResponse: %v", err)
	}
	if len(got.DataUpdates) != 2 {
		t.Fatalf("got %d data updates, want 2", len(got.DataUpdates))
	}
	if got.DataUpdates[0].GetBaseDataType() != domain.TickData {
		t.Errorf("first update type = %s, want Ticks", got.DataUpdates[0].GetBaseDataType())
	}
	if got.DataUpdates[1].GetBaseDataType() != domain.CandleData {
		t.Errorf("second update type = %s, want Candles", got.DataUpdates[1].GetBaseDataType())
	}
}
