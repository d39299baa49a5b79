package transport

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/codec"
)

// writeQueueDepth bounds the per-connection outbound queue (spec §5: "one
// task per TLS connection write loop fed by a bounded queue").
const writeQueueDepth = 256

// Conn wraps one established TLS connection with a dedicated read loop
// and write loop, matching the task-per-direction model in spec §5.
// Frames is the inbound channel; Send enqueues an outbound frame.
type Conn struct {
	Frames chan []byte // inbound frames, closed when the read loop exits
	Key    codec.ConnectionType

	raw      net.Conn
	out      chan []byte
	closeErr chan error
	log      zerolog.Logger

	closeOnce sync.Once
}

// NewConn starts the read and write loops for raw and returns the
// wrapper. Callers read inbound frames from Conn.Frames until it closes,
// and must call Close when done to stop the write loop.
func NewConn(raw net.Conn, key codec.ConnectionType, log zerolog.Logger) *Conn {
	c := &Conn{
		Frames:   make(chan []byte, writeQueueDepth),
		Key:      key,
		raw:      raw,
		out:      make(chan []byte, writeQueueDepth),
		closeErr: make(chan error, 1),
		log:      log.With().Str("component", "transport").Logger(),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Send enqueues a frame for the write loop. Returns false if the
// connection's outbound queue is full or already closed — callers treat
// this the same as a disconnect (spec §7 Disconnected).
func (c *Conn) Send(frame []byte) (sent bool) {
	// A send on the closed out channel panics; report it as a failed send.
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case c.out <- frame:
		return true
	default:
		c.log.Warn().Msg("outbound queue full, dropping connection")
		c.Close()
		return false
	}
}

// Close closes the underlying connection and stops the write loop.
// Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.out)
		err = c.raw.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.Frames)
	r := bufio.NewReader(c.raw)
	for {
		frame, err := codec.ReadFrame(r)
		if err != nil {
			if err != io.EOF {
				c.log.Debug().Err(err).Msg("read loop exiting")
			}
			return
		}
		c.Frames <- frame
	}
}

func (c *Conn) writeLoop() {
	for frame := range c.out {
		if err := codec.WriteFrame(c.raw, frame); err != nil {
			c.log.Debug().Err(err).Msg("write loop exiting")
			return
		}
	}
}

// Registry tracks one live Conn per ConnectionType, as spec §4.C
// describes ("connection registry keyed by ConnectionType").
type Registry struct {
	mu    sync.RWMutex
	conns map[codec.ConnectionType]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[codec.ConnectionType]*Conn)}
}

func (r *Registry) Put(key codec.ConnectionType, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[key] = conn
}

func (r *Registry) Get(key codec.ConnectionType) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[key]
	return c, ok
}

func (r *Registry) Remove(key codec.ConnectionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, key)
}
