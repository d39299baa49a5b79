package rpc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/codec"
	"github.com/fundforge/fundforge/internal/consolidate"
	"github.com/fundforge/fundforge/internal/domain"
)

// Typed wrappers around Client.Call/Send for each request kind in spec
// §4.J, so callers don't hand-assemble DataServerRequest envelopes.

func (c *Client) Register(account string) error {
	return c.Send(codec.DataServerRequest{Kind: codec.Register, Account: account})
}

func (c *Client) Symbols(ctx context.Context, market domain.MarketType) ([]domain.Symbol, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.SymbolsVendor, Market: market}, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Symbols, nil
}

func (c *Client) Markets(ctx context.Context) ([]domain.MarketType, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.Markets}, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Markets, nil
}

func (c *Client) Resolutions(ctx context.Context, market domain.MarketType) ([]domain.SubscriptionResolutionType, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.Resolutions, Market: market}, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return resp.SubResTypes, nil
}

func (c *Client) BaseDataTypes(ctx context.Context) ([]domain.BaseDataType, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.BaseDataTypes}, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return resp.BaseDataTypes, nil
}

func (c *Client) DecimalAccuracy(ctx context.Context, sym domain.Symbol) (uint32, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.DecimalAccuracy, Symbol: sym}, DefaultTimeout)
	if err != nil {
		return 0, err
	}
	return resp.DecimalAccuracy, nil
}

func (c *Client) TickSize(ctx context.Context, sym domain.Symbol) (decimal.Decimal, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.TickSize, Symbol: sym}, DefaultTimeout)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.TickSize)
}

func (c *Client) SymbolInfo(ctx context.Context, sym domain.Symbol) (domain.SymbolInfo, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.SymbolInfoReq, Symbol: sym}, DefaultTimeout)
	if err != nil {
		return domain.SymbolInfo{}, err
	}
	return resp.SymbolInfo, nil
}

func (c *Client) CommissionInfo(ctx context.Context, sym domain.Symbol) (domain.CommissionInfo, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.CommissionInfoReq, Symbol: sym}, DefaultTimeout)
	if err != nil {
		return domain.CommissionInfo{}, err
	}
	return resp.CommissionInfo, nil
}

// HistoricalBaseDataRange fetches a replay window for sub, using the
// longer historical-pull timeout spec §4.J calls out explicitly.
func (c *Client) HistoricalBaseDataRange(ctx context.Context, sub domain.DataSubscription, from, to time.Time) (domain.TimeSlice, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.HistoricalBaseDataRange, Subscription: sub, From: from, To: to}, HistoricalTimeout)
	if err != nil {
		return nil, err
	}
	return resp.DataUpdates, nil
}

func (c *Client) IntradayMarginRequired(ctx context.Context, sym domain.Symbol, qty decimal.Decimal) (decimal.Decimal, error) {
	f, _ := qty.Float64()
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.IntradayMarginRequired, Symbol: sym, Quantity: f}, DefaultTimeout)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.MarginRequired)
}

func (c *Client) OvernightMarginRequired(ctx context.Context, sym domain.Symbol, qty decimal.Decimal) (decimal.Decimal, error) {
	f, _ := qty.Float64()
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.OvernightMarginRequired, Symbol: sym, Quantity: f}, DefaultTimeout)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.MarginRequired)
}

// SessionMarketHours is consumed by internal/subscription.SessionHoursFunc
// when a strategy subscribes to Days(n) candles.
func (c *Client) SessionMarketHours(ctx context.Context, sym domain.Symbol) (consolidate.TradingHours, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.SessionMarketHours, Symbol: sym}, DefaultTimeout)
	if err != nil {
		return consolidate.TradingHours{}, err
	}
	return codec.DecodeTradingHours(resp.SessionHours)
}

// StreamSubscribe and StreamUnsubscribe are one-way per spec §4.J (the
// ack arrives later as a pushed SubscribeResponse/UnsubscribeResponse
// event, not a callback reply).
func (c *Client) StreamSubscribe(sub domain.DataSubscription) error {
	return c.Send(codec.DataServerRequest{Kind: codec.StreamSubscribe, Subscription: sub})
}

func (c *Client) StreamUnsubscribe(sub domain.DataSubscription) error {
	return c.Send(codec.DataServerRequest{Kind: codec.StreamUnsubscribe, Subscription: sub})
}

// OrderRequest is one-way; the resulting OrderUpdateEvent arrives as a
// pushed event, not a callback reply.
func (c *Client) OrderRequest(req domain.OrderRequest) error {
	return c.Send(codec.DataServerRequest{Kind: codec.OrderRequestMsg, Order: req, Account: req.Account})
}

func (c *Client) PaperAccountInit(ctx context.Context, account string, initialCash decimal.Decimal, currency domain.Currency) (domain.AccountInfo, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{
		Kind:     codec.PaperAccountInit,
		Account:  account,
		Quantity: mustFloat(initialCash),
		CcyTo:    currency,
	}, DefaultTimeout)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	return resp.AccountInfo, nil
}

func (c *Client) ExchangeRate(ctx context.Context, from, to domain.Currency) (domain.ExchangeRate, error) {
	resp, err := c.Call(ctx, codec.DataServerRequest{Kind: codec.ExchangeRateReq, CcyFrom: from, CcyTo: to}, DefaultTimeout)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	return resp.ExchangeRate, nil
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
