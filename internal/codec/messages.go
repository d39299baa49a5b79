package codec

import (
	"time"

	"github.com/fundforge/fundforge/internal/domain"
)

// RequestKind enumerates every request the strategy side can send, per
// spec §4.J.
type RequestKind uint8

const (
	Register RequestKind = iota
	SymbolsVendor
	Resolutions
	Markets
	BaseDataTypes
	DecimalAccuracy
	TickSize
	SymbolInfoReq
	CommissionInfoReq
	HistoricalBaseDataRange
	IntradayMarginRequired
	OvernightMarginRequired
	SessionMarketHours
	StreamSubscribe
	StreamUnsubscribe
	OrderRequestMsg
	PaperAccountInit
	ExchangeRateReq
)

// ConnectionType selects which server-side listener/credential set a
// connection targets, per spec §6 server_settings.toml.
type ConnectionType struct {
	Kind   ConnectionKind
	Vendor string // valid when Kind is Vendor or Broker
}

type ConnectionKind uint8

const (
	ConnDefault ConnectionKind = iota
	ConnStrategyRegistry
	ConnVendor
	ConnBroker
)

// DataServerRequest is the envelope for every strategy->server message.
// CallbackID is non-zero for callback-bearing requests (everything except
// Register, StreamSubscribe/Unsubscribe as pure acks, and OrderRequestMsg
// one-way sends); zero means "no response expected on this id".
type DataServerRequest struct {
	Kind         RequestKind
	CallbackID   uint64
	Market       domain.MarketType
	Symbol       domain.Symbol
	Subscription domain.DataSubscription
	From, To     time.Time
	Quantity     float64 // margin-check sizing hint; decimal precision not needed for a capability probe
	Order        domain.OrderRequest
	Account      string
	CcyFrom      domain.Currency
	CcyTo        domain.Currency
}

// DataServerResponse is the envelope for every server->strategy message.
// A zero CallbackID means this is a server-pushed stream event
// (SubscribeResponse/UnSubscribeResponse/DataUpdates/OrderUpdates); a
// non-zero one fulfills exactly the outstanding callback with that id.
type DataServerResponse struct {
	CallbackID uint64
	Err        string // empty on success

	Symbols         []domain.Symbol
	SubResTypes     []domain.SubscriptionResolutionType
	Markets         []domain.MarketType
	BaseDataTypes   []domain.BaseDataType
	DecimalAccuracy uint32
	TickSize        string // decimal.Decimal serialized as a string for wire stability
	SymbolInfo      domain.SymbolInfo
	CommissionInfo  domain.CommissionInfo
	MarginRequired  string
	ExchangeRate    domain.ExchangeRate
	AccountInfo     domain.AccountInfo
	SessionHours    TradingHoursWire

	SubscribeAck   *SubscribeResponse
	UnsubscribeAck *SubscribeResponse
	DataUpdates    domain.TimeSlice
	OrderUpdate    *domain.OrderUpdateEvent
}

// SubscribeResponse acks (or rejects) a StreamSubscribe/StreamUnsubscribe
// request, pushed without a callback id per spec §6.
type SubscribeResponse struct {
	Success bool
	Sub     domain.DataSubscription
	Reason  string
}
