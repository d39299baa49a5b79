// Package fanout implements the server-side stream fan-out described in
// spec §4.G: one upstream vendor subscription per PrimaryFeedKey,
// broadcast to every strategy stream that asked for it, torn down when
// the last receiver leaves.
package fanout

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fundforge/fundforge/internal/domain"
)

// receiverQueueDepth bounds each subscriber's channel (spec §4.G: "bounded,
// e.g. 500 messages per receiver").
const receiverQueueDepth = 500

// PrimaryFeedKey identifies one upstream-vendor subscription on the
// server: (Symbol, BaseDataType) for ticks/quotes, (Symbol, Resolution,
// BaseDataType) for bar feeds. Resolution is left zero-valued (Instant)
// for tick, quote and fundamental keys, whatever resolution the
// subscription names.
type PrimaryFeedKey struct {
	Symbol       domain.Symbol
	Resolution   domain.Resolution
	BaseDataType domain.BaseDataType
}

func KeyFor(sub domain.DataSubscription) PrimaryFeedKey {
	switch sub.BaseDataType {
	case domain.TickData, domain.QuoteData, domain.FundamentalData:
		return PrimaryFeedKey{Symbol: sub.Symbol, BaseDataType: sub.BaseDataType}
	default:
		return PrimaryFeedKey{Symbol: sub.Symbol, Resolution: sub.Resolution, BaseDataType: sub.BaseDataType}
	}
}

func (k PrimaryFeedKey) String() string {
	if k.BaseDataType == domain.CandleData || k.BaseDataType == domain.QuoteBarData {
		return fmt.Sprintf("%s|%s|%s", k.Symbol.Key(), k.Resolution, k.BaseDataType)
	}
	return fmt.Sprintf("%s|%s", k.Symbol.Key(), k.BaseDataType)
}

// StreamID identifies one strategy-side connection subscribing to feeds.
type StreamID string

// VendorSubscribeFunc opens (or closes) the upstream vendor subscription
// backing a PrimaryFeedKey. Supplied by the caller (the data server
// wiring vendor.Adapter.Subscribe/Unsubscribe) so this package stays
// vendor-agnostic.
type VendorSubscribeFunc func(key PrimaryFeedKey) error
type VendorUnsubscribeFunc func(key PrimaryFeedKey)

// Receiver is a per-(stream, key) inbound channel. The fan-out closes it
// when the stream unsubscribes or is dropped for being too slow.
type Receiver struct {
	C    chan domain.BaseData
	key  PrimaryFeedKey
	id   StreamID
}

type broadcaster struct {
	key       PrimaryFeedKey
	receivers map[StreamID]*Receiver
}

// Manager owns the map<PrimaryFeedKey, broadcaster> described in spec
// §4.G and §5. A single mutex guards the map and every broadcaster's
// receiver set, so subscribe's get-or-create runs under that one lock.
type Manager struct {
	mu           sync.Mutex
	broadcasters map[PrimaryFeedKey]*broadcaster
	subscribe    VendorSubscribeFunc
	unsubscribe  VendorUnsubscribeFunc
	log          zerolog.Logger
}

func NewManager(subscribe VendorSubscribeFunc, unsubscribe VendorUnsubscribeFunc, log zerolog.Logger) *Manager {
	return &Manager{
		broadcasters: make(map[PrimaryFeedKey]*broadcaster),
		subscribe:    subscribe,
		unsubscribe:  unsubscribe,
		log:          log.With().Str("component", "fanout").Logger(),
	}
}

// Subscribe returns a Receiver for (stream, key). If a broadcaster for
// key already exists, no vendor call is made — the new receiver is
// simply registered against it. Otherwise a broadcaster is created and
// the vendor subscription opened; on vendor failure the broadcaster is
// torn down and the error returned.
func (m *Manager) Subscribe(stream StreamID, key PrimaryFeedKey) (*Receiver, error) {
	m.mu.Lock()
	b, exists := m.broadcasters[key]
	if !exists {
		b = &broadcaster{key: key, receivers: make(map[StreamID]*Receiver)}
		m.broadcasters[key] = b
	}
	r := &Receiver{C: make(chan domain.BaseData, receiverQueueDepth), key: key, id: stream}
	b.receivers[stream] = r
	m.mu.Unlock()

	if exists {
		return r, nil
	}

	if err := m.subscribe(key); err != nil {
		m.mu.Lock()
		delete(b.receivers, stream)
		delete(m.broadcasters, key)
		m.mu.Unlock()
		return nil, fmt.Errorf("fanout: vendor subscribe for %s: %w", key, err)
	}
	return r, nil
}

// Unsubscribe removes (stream, key) from the broadcaster's receiver set.
// When the receiver count reaches zero the vendor subscription is torn
// down and the broadcaster dropped.
func (m *Manager) Unsubscribe(stream StreamID, key PrimaryFeedKey) {
	m.mu.Lock()
	b, ok := m.broadcasters[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	if r, ok := b.receivers[stream]; ok {
		close(r.C)
		delete(b.receivers, stream)
	}
	empty := len(b.receivers) == 0
	if empty {
		delete(m.broadcasters, key)
	}
	m.mu.Unlock()

	if empty {
		m.unsubscribe(key)
	}
}

// Publish fans data out to every receiver on data's PrimaryFeedKey. Per
// spec §4.G and §5: delivery is FIFO within one (key, receiver) pair; a
// receiver whose channel is full is dropped and its stream closed
// (back-pressure is not propagated upstream).
func (m *Manager) Publish(data domain.BaseData) {
	key := KeyFor(data.Subscription())

	m.mu.Lock()
	b, ok := m.broadcasters[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	var slow []StreamID
	for id, r := range b.receivers {
		select {
		case r.C <- data:
		default:
			slow = append(slow, id)
		}
	}
	for _, id := range slow {
		if r, ok := b.receivers[id]; ok {
			close(r.C)
			delete(b.receivers, id)
		}
	}
	empty := len(slow) > 0 && len(b.receivers) == 0
	if empty {
		delete(m.broadcasters, key)
	}
	m.mu.Unlock()

	for _, id := range slow {
		m.log.Warn().Str("stream", string(id)).Str("key", key.String()).Msg("receiver too slow, dropped")
	}
	if empty {
		m.unsubscribe(key)
	}
}

// ReceiverCount reports the live subscriber count for key, for tests and
// diagnostics.
func (m *Manager) ReceiverCount(key PrimaryFeedKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.broadcasters[key]
	if !ok {
		return 0
	}
	return len(b.receivers)
}
