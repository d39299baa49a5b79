// Package dataserver implements the server side of the strategy<->data
// server protocol (spec §4.C-§4.J): one Server per process, dispatching
// every codec.DataServerRequest a connected strategy sends to the vendor
// adapter, fan-out manager, archive and config tables that answer it.
//
// Adapted from the teacher's fixclient/repl.go request-switch shape and
// the subscribe/unsubscribe bookkeeping in database/marketdata.go, now
// driving vendor.Adapter instead of a single FIX session.
package dataserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/archive"
	"github.com/fundforge/fundforge/internal/codec"
	"github.com/fundforge/fundforge/internal/config"
	"github.com/fundforge/fundforge/internal/consolidate"
	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/fanout"
	"github.com/fundforge/fundforge/internal/session"
	"github.com/fundforge/fundforge/internal/transport"
	"github.com/fundforge/fundforge/internal/vendor"
)

// upstreamStream is the fixed vendor.StreamID the server uses for its one
// shared upstream subscription per PrimaryFeedKey; which strategy asked
// first is irrelevant once the fan-out manager owns the broadcast.
const upstreamStream = vendor.StreamID("dataserver-upstream")

// SessionHoursProvider answers SessionMarketHours requests. No
// implementation ships in this repository and cmd/dataserver passes nil;
// nil disables the request (every caller gets a clear "not configured"
// error instead of a zero-value calendar).
type SessionHoursProvider interface {
	SessionHours(sym domain.Symbol) (consolidate.TradingHours, error)
}

type vendorBinding struct {
	adapter vendor.Adapter
	fanout  *fanout.Manager
}

// Server holds everything shared across connections: one archive, one
// vendor/fan-out binding per integration, and the config tables that
// answer capability and margin/commission probes.
type Server struct {
	log         zerolog.Logger
	archive     *archive.Archive
	instruments *config.InstrumentTable
	rates       config.ExchangeRateTable
	hours       SessionHoursProvider
	sessions    *session.Store // nil disables audit logging

	mu      sync.RWMutex
	vendors map[string]*vendorBinding
}

// NewServer wires the shared state a data server process needs. sessions
// may be nil to run without an audit log; hours may be nil if no
// Days(n) session calendar is configured for this deployment.
func NewServer(arch *archive.Archive, instruments *config.InstrumentTable, rates config.ExchangeRateTable, hours SessionHoursProvider, sessions *session.Store, log zerolog.Logger) *Server {
	return &Server{
		log:         log.With().Str("component", "dataserver").Logger(),
		archive:     arch,
		instruments: instruments,
		rates:       rates,
		hours:       hours,
		sessions:    sessions,
		vendors:     make(map[string]*vendorBinding),
	}
}

// NewFanoutManager builds the fanout.Manager for one vendor integration.
// adapterRef is a thunk rather than a vendor.Adapter directly because a
// vendor adapter's own constructor needs the manager's Publish as its
// data callback — the manager has to exist before the adapter does, so
// callers close over a variable they assign right after:
//
//	var adapter vendor.Adapter
//	mgr := dataserver.NewFanoutManager("oanda", func() vendor.Adapter { return adapter }, log)
//	adapter = oandastream.New(cfg, mgr.Publish, log)
//	srv.RegisterVendor("oanda", adapter, mgr)
func NewFanoutManager(name string, adapterRef func() vendor.Adapter, log zerolog.Logger) *fanout.Manager {
	return fanout.NewManager(
		func(key fanout.PrimaryFeedKey) error {
			res := adapterRef().Subscribe(upstreamStream, subscriptionFromKey(key))
			if !res.Accepted {
				return fmt.Errorf("dataserver: vendor %s rejected subscribe to %s: %s", name, key, res.Reason)
			}
			return nil
		},
		func(key fanout.PrimaryFeedKey) {
			adapterRef().Unsubscribe(upstreamStream, subscriptionFromKey(key))
		},
		log,
	)
}

func subscriptionFromKey(key fanout.PrimaryFeedKey) domain.DataSubscription {
	return domain.DataSubscription{
		Symbol:       key.Symbol,
		Resolution:   key.Resolution,
		BaseDataType: key.BaseDataType,
		MarketType:   key.Symbol.MarketType,
	}
}

// RegisterVendor binds a vendor's adapter and fan-out manager under name,
// the key a connection's ConnectionType.Vendor selects.
func (s *Server) RegisterVendor(name string, adapter vendor.Adapter, mgr *fanout.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors[name] = &vendorBinding{adapter: adapter, fanout: mgr}
}

func (s *Server) vendorBindingFor(ct codec.ConnectionType) (*vendorBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ct.Vendor != "" {
		b, ok := s.vendors[ct.Vendor]
		if !ok {
			return nil, fmt.Errorf("dataserver: no vendor registered for %q", ct.Vendor)
		}
		return b, nil
	}
	if len(s.vendors) == 1 {
		for _, b := range s.vendors {
			return b, nil
		}
	}
	return nil, fmt.Errorf("dataserver: connection carries no vendor and server has %d registered", len(s.vendors))
}

func (s *Server) symbolInfo(adapter vendor.Adapter, sym domain.Symbol) (domain.SymbolInfo, error) {
	tickSize, err := adapter.TickSize(sym)
	if err != nil {
		return domain.SymbolInfo{}, err
	}
	accuracy, err := adapter.DecimalAccuracy(sym)
	if err != nil {
		return domain.SymbolInfo{}, err
	}
	return s.instruments.SymbolInfo(sym, tickSize, accuracy)
}

// HandleConn runs one connection's read/dispatch loop until its Frames
// channel closes (peer disconnect or a fatal decode error). It resolves
// the vendor binding once, up front, from connType, matching the
// per-listener vendor pinning in server_settings.toml (spec §6).
func (s *Server) HandleConn(ctx context.Context, connType codec.ConnectionType, conn *transport.Conn, remoteAddr string) {
	binding, err := s.vendorBindingFor(connType)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", remoteAddr).Msg("rejecting connection, no vendor binding")
		conn.Close()
		return
	}

	h := &connHandler{
		server:     s,
		binding:    binding,
		conn:       conn,
		remoteAddr: remoteAddr,
		stream:     fanout.StreamID(fmt.Sprintf("%s-%p", connType.Vendor, conn)),
		active:     make(map[string]fanout.PrimaryFeedKey),
		log:        s.log.With().Str("remote", remoteAddr).Logger(),
	}
	h.run(ctx)
}

// connHandler is the per-connection dispatch state: which feeds this
// stream has live (for teardown on disconnect) and which audit-log
// session row, if any, it owns.
type connHandler struct {
	server     *Server
	binding    *vendorBinding
	conn       *transport.Conn
	remoteAddr string
	stream     fanout.StreamID
	sessionID  string

	mu     sync.Mutex
	active map[string]fanout.PrimaryFeedKey
}

func (h *connHandler) run(ctx context.Context) {
	defer h.cleanup()
	for frame := range h.conn.Frames {
		req, err := codec.UnmarshalRequest(frame)
		if err != nil {
			h.log.Warn().Err(err).Msg("malformed request frame, dropping connection")
			h.conn.Close()
			return
		}
		h.dispatch(ctx, req)
	}
}

func (h *connHandler) cleanup() {
	h.mu.Lock()
	keys := make([]fanout.PrimaryFeedKey, 0, len(h.active))
	for _, k := range h.active {
		keys = append(keys, k)
	}
	h.active = nil
	h.mu.Unlock()

	for _, k := range keys {
		h.binding.fanout.Unsubscribe(h.stream, k)
	}
	if h.server.sessions != nil && h.sessionID != "" {
		if err := h.server.sessions.RecordSessionEnd(h.sessionID, time.Now()); err != nil {
			h.log.Warn().Err(err).Msg("record session end")
		}
	}
}

func (h *connHandler) dispatch(ctx context.Context, req codec.DataServerRequest) {
	adapter := h.binding.adapter

	switch req.Kind {
	case codec.Register:
		h.handleRegister(req)

	case codec.SymbolsVendor:
		syms, err := adapter.Symbols(req.Market)
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.Symbols = syms })

	case codec.Markets:
		markets, err := adapter.Markets()
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.Markets = markets })

	case codec.Resolutions:
		res, err := adapter.Resolutions(req.Market)
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.SubResTypes = res })

	case codec.BaseDataTypes:
		bts, err := adapter.BaseDataTypes()
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.BaseDataTypes = bts })

	case codec.DecimalAccuracy:
		n, err := adapter.DecimalAccuracy(req.Symbol)
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.DecimalAccuracy = n })

	case codec.TickSize:
		ts, err := adapter.TickSize(req.Symbol)
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.TickSize = ts.String() })

	case codec.SymbolInfoReq:
		info, err := h.server.symbolInfo(adapter, req.Symbol)
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.SymbolInfo = info })

	case codec.CommissionInfoReq:
		info, ok := h.server.instruments.Commission(req.Symbol)
		if !ok {
			h.replyErr(req, fmt.Errorf("dataserver: no commission schedule for %s", req.Symbol))
			return
		}
		h.reply(req, func(r *codec.DataServerResponse) { r.CommissionInfo = info })

	case codec.HistoricalBaseDataRange:
		data, err := h.server.archive.Range(req.Subscription.Symbol, req.Subscription.Resolution, req.Subscription.BaseDataType, req.From, req.To)
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.DataUpdates = domain.TimeSlice(data) })

	case codec.IntradayMarginRequired:
		m, err := (config.IntradayMargin{Table: h.server.instruments}).MarginRequired(req.Symbol, decimal.NewFromFloat(req.Quantity))
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.MarginRequired = m.String() })

	case codec.OvernightMarginRequired:
		m, err := (config.OvernightMargin{Table: h.server.instruments}).MarginRequired(req.Symbol, decimal.NewFromFloat(req.Quantity))
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.MarginRequired = m.String() })

	case codec.SessionMarketHours:
		h.handleSessionHours(req)

	case codec.StreamSubscribe:
		h.handleSubscribe(req.Subscription)

	case codec.StreamUnsubscribe:
		h.handleUnsubscribe(req.Subscription)

	case codec.OrderRequestMsg:
		h.handleOrder(ctx, adapter, req.Order)

	case codec.PaperAccountInit:
		h.handlePaperAccountInit(req)

	case codec.ExchangeRateReq:
		rate, err := h.server.rates.Rate(req.CcyFrom, req.CcyTo)
		h.replyOrErr(req, err, func(r *codec.DataServerResponse) {
			r.ExchangeRate = domain.ExchangeRate{From: req.CcyFrom, To: req.CcyTo, Rate: rate}
		})

	default:
		h.replyErr(req, fmt.Errorf("dataserver: unhandled request kind %d", req.Kind))
	}
}

func (h *connHandler) handleRegister(req codec.DataServerRequest) {
	if h.server.sessions == nil {
		return
	}
	h.sessionID = session.NewSessionID()
	if err := h.server.sessions.RecordSessionStart(h.sessionID, req.Account, string(h.stream), h.remoteAddr, time.Now()); err != nil {
		h.log.Warn().Err(err).Msg("record session start")
	}
}

func (h *connHandler) handleSessionHours(req codec.DataServerRequest) {
	if h.server.hours == nil {
		h.replyErr(req, fmt.Errorf("dataserver: no session-hours calendar configured"))
		return
	}
	th, err := h.server.hours.SessionHours(req.Symbol)
	h.replyOrErr(req, err, func(r *codec.DataServerResponse) { r.SessionHours = codec.EncodeTradingHours(th) })
}

func (h *connHandler) handlePaperAccountInit(req codec.DataServerRequest) {
	info := domain.AccountInfo{
		Account:       req.Account,
		Brokerage:     h.binding.adapter.Name(),
		Currency:      string(req.CcyTo),
		CashValue:     decimal.NewFromFloat(req.Quantity),
		CashAvailable: decimal.NewFromFloat(req.Quantity),
	}
	h.reply(req, func(r *codec.DataServerResponse) { r.AccountInfo = info })
}

func (h *connHandler) handleSubscribe(sub domain.DataSubscription) {
	key := fanout.KeyFor(sub)
	recv, err := h.binding.fanout.Subscribe(h.stream, key)
	if err != nil {
		h.push(codec.DataServerResponse{SubscribeAck: &codec.SubscribeResponse{Success: false, Sub: sub, Reason: err.Error()}})
		return
	}

	h.mu.Lock()
	h.active[sub.String()] = key
	h.mu.Unlock()

	if h.server.sessions != nil && h.sessionID != "" {
		if err := h.server.sessions.RecordSubscription(h.sessionID, sub, session.Subscribed, time.Now()); err != nil {
			h.log.Warn().Err(err).Msg("record subscription")
		}
	}
	h.push(codec.DataServerResponse{SubscribeAck: &codec.SubscribeResponse{Success: true, Sub: sub}})
	go h.forward(recv)
}

func (h *connHandler) handleUnsubscribe(sub domain.DataSubscription) {
	h.mu.Lock()
	key, ok := h.active[sub.String()]
	if !ok {
		key = fanout.KeyFor(sub)
	}
	delete(h.active, sub.String())
	h.mu.Unlock()

	h.binding.fanout.Unsubscribe(h.stream, key)
	if h.server.sessions != nil && h.sessionID != "" {
		if err := h.server.sessions.RecordSubscription(h.sessionID, sub, session.Unsubscribed, time.Now()); err != nil {
			h.log.Warn().Err(err).Msg("record unsubscription")
		}
	}
	h.push(codec.DataServerResponse{UnsubscribeAck: &codec.SubscribeResponse{Success: true, Sub: sub}})
}

// forward relays one subscription's fanout.Receiver onto the connection
// until the receiver's channel closes (explicit unsubscribe, connection
// teardown, or the stream being dropped as too slow).
func (h *connHandler) forward(recv *fanout.Receiver) {
	for data := range recv.C {
		h.push(codec.DataServerResponse{DataUpdates: domain.TimeSlice{data}})
	}
}

// handleOrder routes one OrderRequest to the vendor and pushes back the
// resulting OrderUpdateEvent. There is no server-side ledger: paper
// trading's Book lives in the strategy runtime (spec §4.L); this layer
// only ever talks to a real or simulated vendor.
func (h *connHandler) handleOrder(ctx context.Context, adapter vendor.Adapter, req domain.OrderRequest) {
	var (
		ev  domain.OrderUpdateEvent
		err error
	)
	switch req.Action {
	case domain.OrderCreate:
		ev, err = adapter.PlaceOrder(ctx, req)
	case domain.OrderCancel:
		err = adapter.CancelOrder(ctx, req.Account, req.OrderID)
		ev = domain.OrderUpdateEvent{OrderID: req.OrderID, Account: req.Account, Symbol: req.Symbol, Status: domain.OrderCancelled}
	case domain.OrderUpdate:
		ev, err = adapter.ModifyOrder(ctx, req)
	case domain.OrderFlattenAllFor:
		err = adapter.FlattenAllFor(ctx, req.Account, req.Symbol)
		ev = domain.OrderUpdateEvent{Account: req.Account, Symbol: req.Symbol, Status: domain.OrderAccepted}
	default:
		err = fmt.Errorf("dataserver: order action %s has no blotter to act against", req.Action)
	}
	if err != nil {
		ev = domain.OrderUpdateEvent{OrderID: req.OrderID, Account: req.Account, Symbol: req.Symbol, Status: domain.OrderRejected, RejectReason: err.Error()}
	}
	if h.server.sessions != nil && h.sessionID != "" {
		if recErr := h.server.sessions.RecordOrder(h.sessionID, req, ev.Status, time.Now()); recErr != nil {
			h.log.Warn().Err(recErr).Msg("record order")
		}
	}
	h.push(codec.DataServerResponse{OrderUpdate: &ev})
}

// reply fulfills a callback-bearing request; req.CallbackID == 0 means
// the caller used Send rather than Call and expects no response.
func (h *connHandler) reply(req codec.DataServerRequest, fill func(*codec.DataServerResponse)) {
	if req.CallbackID == 0 {
		return
	}
	resp := codec.DataServerResponse{CallbackID: req.CallbackID}
	fill(&resp)
	h.push(resp)
}

func (h *connHandler) replyErr(req codec.DataServerRequest, err error) {
	if req.CallbackID == 0 {
		h.log.Warn().Err(err).Int("kind", int(req.Kind)).Msg("one-way request failed")
		return
	}
	h.push(codec.DataServerResponse{CallbackID: req.CallbackID, Err: err.Error()})
}

func (h *connHandler) replyOrErr(req codec.DataServerRequest, err error, fill func(*codec.DataServerResponse)) {
	if err != nil {
		h.replyErr(req, err)
		return
	}
	h.reply(req, fill)
}

func (h *connHandler) push(resp codec.DataServerResponse) {
	payload, err := codec.MarshalResponse(resp)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal response")
		return
	}
	h.conn.Send(payload)
}
