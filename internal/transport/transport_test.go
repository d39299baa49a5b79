package transport

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/codec"
)

func TestConnRoundTripsFrames(t *testing.T) {
	a, b := net.Pipe()
	log := zerolog.Nop()

	connA := NewConn(a, codec.ConnectionType{Kind: codec.ConnDefault}, log)
	connB := NewConn(b, codec.ConnectionType{Kind: codec.ConnDefault}, log)
	defer connA.Close()
	defer connB.Close()

	if ok := connA.Send([]byte("ping")); !ok {
		t.Fatal("Send returned false")
	}

	select {
	case frame := <-connB.Frames:
		if string(frame) != "ping" {
			t.Errorf("got %q, want %q", frame, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestConnCloseStopsReadLoop(t *testing.T) {
	a, b := net.Pipe()
	log := zerolog.Nop()

	connA := NewConn(a, codec.ConnectionType{Kind: codec.ConnDefault}, log)
	connB := NewConn(b, codec.ConnectionType{Kind: codec.ConnDefault}, log)
	defer connB.Close()

	connA.Close()

	select {
	case _, ok := <-connB.Frames:
		if ok {
			t.Fatal("expected Frames to close, got a frame instead")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Frames to close")
	}
}

func TestRegistryPutGetRemove(t *testing.T) {
	reg := NewRegistry()
	key := codec.ConnectionType{Kind: codec.ConnVendor, Vendor: "oanda"}
	conn := &Conn{Key: key}

	if _, ok := reg.Get(key); ok {
		t.Fatal("expected no connection before Put")
	}

	reg.Put(key, conn)
	got, ok := reg.Get(key)
	if !ok || got != conn {
		t.Fatal("expected Get to return the connection stored by Put")
	}

	reg.Remove(key)
	if _, ok := reg.Get(key); ok {
		t.Fatal("expected no connection after Remove")
	}
}
