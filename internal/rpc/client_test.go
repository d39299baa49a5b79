package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/codec"
	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/transport"
)

func pipeConns(t *testing.T) (*transport.Conn, *transport.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return transport.NewConn(a, codec.ConnectionType{Kind: codec.ConnDefault}, zerolog.Nop()),
		transport.NewConn(b, codec.ConnectionType{Kind: codec.ConnDefault}, zerolog.Nop())
}

func TestCallRoundTrip(t *testing.T) {
	clientConn, serverConn := pipeConns(t)
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		for frame := range serverConn.Frames {
			req, err := codec.UnmarshalRequest(frame)
			if err != nil {
				continue
			}
			resp, _ := codec.MarshalResponse(codec.DataServerResponse{
				CallbackID: req.CallbackID,
				Markets:    []domain.MarketType{domain.Forex()},
			})
			serverConn.Send(resp)
		}
	}()

	client := NewClient(clientConn, nil, zerolog.Nop())
	markets, err := client.Markets(context.Background(), DefaultTimeout)
	if err != nil {
		t.Fatalf("Markets: %v", err)
	}
	if len(markets) != 1 || markets[0] != domain.Forex() {
		t.Fatalf("markets = %v, want [Forex]", markets)
	}
}

func TestCallTimeout(t *testing.T) {
	clientConn, serverConn := pipeConns(t)
	defer clientConn.Close()
	defer serverConn.Close()

	// Server never replies.
	go func() {
		for range serverConn.Frames {
		}
	}()

	client := NewClient(clientConn, nil, zerolog.Nop())
	_, err := client.Call(context.Background(), codec.DataServerRequest{Kind: codec.Markets}, 20*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestEventRoutedWithoutCallback(t *testing.T) {
	clientConn, serverConn := pipeConns(t)
	defer clientConn.Close()
	defer serverConn.Close()

	events := make(chan codec.DataServerResponse, 1)
	client := NewClient(clientConn, func(r codec.DataServerResponse) { events <- r }, zerolog.Nop())
	_ = client

	payload, _ := codec.MarshalResponse(codec.DataServerResponse{
		SubscribeAck: &codec.SubscribeResponse{Success: true},
	})
	serverConn.Send(payload)

	select {
	case ev := <-events:
		if ev.SubscribeAck == nil || !ev.SubscribeAck.Success {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pushed event")
	}
}
