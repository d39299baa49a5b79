// Package rpc implements the strategy-side request/response multiplexer
// of spec §4.J: one TLS connection carrying length-prefixed frames,
// callback-correlated requests, and a fan-in of server-pushed stream
// events (subscribe acks, data updates, order updates) that carry no
// callback id.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/codec"
	"github.com/fundforge/fundforge/internal/transport"
)

// DefaultTimeout and HistoricalTimeout are the per-callback waits spec
// §4.J names explicitly ("default 5 s; 30 s for historical").
const (
	DefaultTimeout    = 5 * time.Second
	HistoricalTimeout = 30 * time.Second
)

// ErrTimeout is returned when a callback-bearing request's timeout
// elapses before the server replies (spec §7 "Timeout").
var ErrTimeout = errors.New("rpc: timeout")

// ErrClosed is returned by pending and future calls once the client's
// connection has gone down.
var ErrClosed = errors.New("rpc: connection closed")

// EventHandler receives every server-pushed stream event (zero
// CallbackID): SubscribeResponse, UnsubscribeResponse, DataUpdates,
// OrderUpdates, routed here instead of to a waiting callback.
type EventHandler func(codec.DataServerResponse)

// Client is one strategy<->data-server connection's request/response
// multiplexer. It owns the callback map described in spec §4.J and §5
// ("Callbacks map: concurrent map; id generation via atomic counter").
type Client struct {
	conn    *transport.Conn
	onEvent EventHandler
	log     zerolog.Logger

	counter uint64

	mu        sync.Mutex
	callbacks map[uint64]chan codec.DataServerResponse
	closed    bool

	readDone chan struct{}
}

// NewClient starts the client's read-dispatch loop over conn. onEvent is
// invoked (from the read loop's goroutine) for every response with a
// zero CallbackID; callers should not block long inside it.
func NewClient(conn *transport.Conn, onEvent EventHandler, log zerolog.Logger) *Client {
	c := &Client{
		conn:      conn,
		onEvent:   onEvent,
		log:       log.With().Str("component", "rpc").Logger(),
		callbacks: make(map[uint64]chan codec.DataServerResponse),
		readDone:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	for frame := range c.conn.Frames {
		resp, err := codec.UnmarshalResponse(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("schema mismatch decoding response, dropping frame")
			continue
		}
		c.dispatch(resp)
	}
	c.failAllPending()
}

func (c *Client) dispatch(resp codec.DataServerResponse) {
	if resp.CallbackID == 0 {
		if c.onEvent != nil {
			c.onEvent(resp)
		}
		return
	}

	c.mu.Lock()
	ch, ok := c.callbacks[resp.CallbackID]
	if ok {
		delete(c.callbacks, resp.CallbackID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn().Uint64("callback_id", resp.CallbackID).Msg("unmatched response, dropping")
		return
	}
	ch <- resp
}

func (c *Client) failAllPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.callbacks {
		close(ch)
		delete(c.callbacks, id)
	}
}

// Call sends req with a freshly assigned CallbackID and blocks until the
// matching response arrives, ctx is cancelled, or timeout elapses —
// whichever comes first. On timeout the callback slot is removed and
// ErrTimeout returned (spec §4.J, §5 "Cancellation & timeouts").
func (c *Client) Call(ctx context.Context, req codec.DataServerRequest, timeout time.Duration) (codec.DataServerResponse, error) {
	id := atomic.AddUint64(&c.counter, 1)
	req.CallbackID = id

	ch := make(chan codec.DataServerResponse, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return codec.DataServerResponse{}, ErrClosed
	}
	c.callbacks[id] = ch
	c.mu.Unlock()

	payload, err := codec.MarshalRequest(req)
	if err != nil {
		c.removeCallback(id)
		return codec.DataServerResponse{}, fmt.Errorf("rpc: marshal request: %w", err)
	}
	if !c.conn.Send(payload) {
		c.removeCallback(id)
		return codec.DataServerResponse{}, ErrClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return codec.DataServerResponse{}, ErrClosed
		}
		if resp.Err != "" {
			return resp, fmt.Errorf("rpc: server error: %s", resp.Err)
		}
		return resp, nil
	case <-timer.C:
		c.removeCallback(id)
		return codec.DataServerResponse{}, ErrTimeout
	case <-ctx.Done():
		c.removeCallback(id)
		return codec.DataServerResponse{}, ctx.Err()
	}
}

// Send issues a one-way request that expects no reply (Register,
// StreamSubscribe/Unsubscribe acks arrive as events, OrderRequestMsg is
// fire-and-forget per spec §4.J).
func (c *Client) Send(req codec.DataServerRequest) error {
	payload, err := codec.MarshalRequest(req)
	if err != nil {
		return fmt.Errorf("rpc: marshal request: %w", err)
	}
	if !c.conn.Send(payload) {
		return ErrClosed
	}
	return nil
}

func (c *Client) removeCallback(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.callbacks, id)
}

// Close tears down the underlying connection. Pending calls observe
// ErrClosed once the read loop notices.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed once the read loop has exited (connection gone).
func (c *Client) Done() <-chan struct{} {
	return c.readDone
}
