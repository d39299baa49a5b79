// Package codec implements the wire framing and request/response envelopes
// carried over the strategy<->data-server TLS connection (spec §6): an
// 8-byte big-endian length prefix followed by a gob-encoded payload. No
// delimiter bytes; the length is authoritative.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's payload so a corrupt or hostile
// peer can't make a reader allocate an unbounded buffer from a forged
// length prefix.
const MaxFrameSize = 64 << 20 // 64 MiB

// WriteFrame writes one length-prefixed frame to w. Safe for use by a
// single writer goroutine per connection; callers needing concurrent
// writers must serialize through a queue (the transport's write loop).
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("codec: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("codec: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. Returns io.EOF
// unwrapped when the peer closed the connection cleanly between frames
// (no partial length prefix read), so callers can distinguish a clean
// disconnect from a mid-frame failure.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("codec: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("codec: frame size %d exceeds max %d", n, MaxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("codec: read frame payload: %w", err)
	}
	return payload, nil
}
