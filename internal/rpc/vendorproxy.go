package rpc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
	"github.com/fundforge/fundforge/internal/vendor"
)

// VendorProxy satisfies vendor.Adapter by forwarding every capability
// probe and order-routing call over one Client's connection, so
// internal/subscription.Handler (which only needs Resolutions and
// TickSize from its vendor.Adapter field) and anything else written
// against vendor.Adapter can run unmodified in the strategy process,
// which has no local vendor connection of its own.
//
// Subscribe/Unsubscribe are fire-and-forget here: the server's ack
// arrives later as a pushed SubscribeResponse/UnsubscribeResponse event
// routed through the Client's EventHandler, not synchronously from this
// call, so the returned SubscribeResult is an optimistic Accept unless the
// request could not be sent, in which case Accepted is false and Reason
// holds the send error.
type VendorProxy struct {
	client *Client
	name   string
}

// NewVendorProxy wraps client as a vendor.Adapter named name (the vendor
// the data-server connection is pinned to).
func NewVendorProxy(client *Client, name string) *VendorProxy {
	return &VendorProxy{client: client, name: name}
}

func (p *VendorProxy) Name() string { return p.name }

func (p *VendorProxy) Symbols(market domain.MarketType) ([]domain.Symbol, error) {
	return p.client.Symbols(context.Background(), market)
}

func (p *VendorProxy) Markets() ([]domain.MarketType, error) {
	return p.client.Markets(context.Background())
}

func (p *VendorProxy) Resolutions(market domain.MarketType) ([]domain.SubscriptionResolutionType, error) {
	return p.client.Resolutions(context.Background(), market)
}

func (p *VendorProxy) BaseDataTypes() ([]domain.BaseDataType, error) {
	return p.client.BaseDataTypes(context.Background())
}

func (p *VendorProxy) DecimalAccuracy(sym domain.Symbol) (uint32, error) {
	return p.client.DecimalAccuracy(context.Background(), sym)
}

func (p *VendorProxy) TickSize(sym domain.Symbol) (decimal.Decimal, error) {
	return p.client.TickSize(context.Background(), sym)
}

func (p *VendorProxy) Subscribe(_ vendor.StreamID, sub domain.DataSubscription) vendor.SubscribeResult {
	if err := p.client.StreamSubscribe(sub); err != nil {
		return vendor.SubscribeResult{Accepted: false, Reason: vendor.RejectReason(err.Error())}
	}
	return vendor.SubscribeResult{Accepted: true}
}

func (p *VendorProxy) Unsubscribe(_ vendor.StreamID, sub domain.DataSubscription) {
	_ = p.client.StreamUnsubscribe(sub)
}

func (p *VendorProxy) HistoricalPull(ctx context.Context, sub domain.DataSubscription, from, to time.Time, onData func(domain.BaseData)) (vendor.Progress, error) {
	data, err := p.client.HistoricalBaseDataRange(ctx, sub, from, to)
	if err != nil {
		return vendor.Progress{}, err
	}
	for _, bd := range data {
		onData(bd)
	}
	return vendor.Progress{Symbol: sub.Symbol, WindowStart: from, WindowEnd: to, RecordCount: len(data)}, nil
}

// PlaceOrder, ModifyOrder, CancelOrder and FlattenAllFor below exist only
// to complete the vendor.Adapter interface; order routing over this
// connection is one-way (OrderRequestMsg) with the fill arriving later
// as a pushed OrderUpdate event through the Client's EventHandler, so
// the zero-value OrderUpdateEvent returned here is never meaningful —
// callers that need the real result should route through Client.OrderRequest
// and watch the event stream directly, as cmd/strategy's Runtime does.
func (p *VendorProxy) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderUpdateEvent, error) {
	req.Action = domain.OrderCreate
	return domain.OrderUpdateEvent{}, p.client.OrderRequest(req)
}

func (p *VendorProxy) CancelOrder(_ context.Context, account, orderID string) error {
	return p.client.OrderRequest(domain.OrderRequest{Action: domain.OrderCancel, Account: account, OrderID: orderID})
}

func (p *VendorProxy) ModifyOrder(_ context.Context, req domain.OrderRequest) (domain.OrderUpdateEvent, error) {
	req.Action = domain.OrderUpdate
	return domain.OrderUpdateEvent{}, p.client.OrderRequest(req)
}

func (p *VendorProxy) FlattenAllFor(_ context.Context, account string, sym domain.Symbol) error {
	return p.client.OrderRequest(domain.OrderRequest{Action: domain.OrderFlattenAllFor, Account: account, Symbol: sym})
}

var _ vendor.Adapter = (*VendorProxy)(nil)
