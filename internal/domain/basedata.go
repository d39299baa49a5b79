package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BaseDataType enumerates the five data shapes a vendor can serve.
type BaseDataType uint8

const (
	TickData BaseDataType = iota
	QuoteData
	CandleData
	QuoteBarData
	FundamentalData
)

func (t BaseDataType) String() string {
	switch t {
	case TickData:
		return "Ticks"
	case QuoteData:
		return "Quotes"
	case CandleData:
		return "Candles"
	case QuoteBarData:
		return "QuoteBars"
	case FundamentalData:
		return "Fundamentals"
	default:
		return "Unknown"
	}
}

// SubscriptionResolutionType is the key under which primary feeds are
// registered, both by a vendor's capability set (§4.F) and by the
// server-side fan-out table (§4.G).
type SubscriptionResolutionType struct {
	Resolution   Resolution
	BaseDataType BaseDataType
}

func (s SubscriptionResolutionType) String() string {
	return fmt.Sprintf("%s/%s", s.Resolution, s.BaseDataType)
}

// CandleType selects the derived-bar algorithm a Candles/QuoteBars
// subscription wants. Only meaningful when BaseDataType is Candles or
// QuoteBars.
type CandleTypeKind uint8

const (
	CandleStandard CandleTypeKind = iota
	CandleHeikinAshi
	CandleRenko
)

type CandleType struct {
	Kind      CandleTypeKind
	BrickSize decimal.Decimal // valid only when Kind == CandleRenko
}

func (c CandleType) String() string {
	switch c.Kind {
	case CandleStandard:
		return "Standard"
	case CandleHeikinAshi:
		return "HeikinAshi"
	case CandleRenko:
		return fmt.Sprintf("Renko(%s)", c.BrickSize)
	default:
		return "Unknown"
	}
}

// DataSubscription names one strategy-visible data stream.
type DataSubscription struct {
	Symbol       Symbol
	Resolution   Resolution
	BaseDataType BaseDataType
	MarketType   MarketType
	CandleType   *CandleType // nil unless BaseDataType is Candles/QuoteBars and non-Standard
}

func (d DataSubscription) SubResType() SubscriptionResolutionType {
	return SubscriptionResolutionType{Resolution: d.Resolution, BaseDataType: d.BaseDataType}
}

func (d DataSubscription) String() string {
	if d.CandleType != nil {
		return fmt.Sprintf("%s %s %s[%s]", d.Symbol, d.Resolution, d.BaseDataType, d.CandleType)
	}
	return fmt.Sprintf("%s %s %s", d.Symbol, d.Resolution, d.BaseDataType)
}

// BaseData is the polymorphic carrier over {Tick, Quote, Candle, QuoteBar,
// Fundamental}. Every variant exposes enough to drive consolidation,
// archival and ledger updates without a type switch at every call site.
type BaseData interface {
	GetSymbol() Symbol
	CloseTime() time.Time
	GetResolution() Resolution
	GetBaseDataType() BaseDataType
	IsClosed() bool
	SetClosed(bool)
	Subscription() DataSubscription
	Clone() BaseData
}

// Tick is a single trade print.
type Tick struct {
	Symbol_     Symbol
	Price       decimal.Decimal
	Volume      decimal.Decimal
	Time        time.Time
	Ask         decimal.Decimal // best ask at print time, if known
	Bid         decimal.Decimal
}

func (t *Tick) GetSymbol() Symbol              { return t.Symbol_ }
func (t *Tick) CloseTime() time.Time           { return t.Time }
func (t *Tick) GetResolution() Resolution      { return Ticks(1) }
func (t *Tick) GetBaseDataType() BaseDataType  { return TickData }
func (t *Tick) IsClosed() bool                 { return true }
func (t *Tick) SetClosed(bool)                 {}
func (t *Tick) Subscription() DataSubscription {
	return DataSubscription{Symbol: t.Symbol_, Resolution: Ticks(1), BaseDataType: TickData, MarketType: t.Symbol_.MarketType}
}
func (t *Tick) Clone() BaseData { c := *t; return &c }

// Quote is a top-of-book bid/ask snapshot.
type Quote struct {
	Symbol_ Symbol
	Bid     decimal.Decimal
	BidVol  decimal.Decimal
	Ask     decimal.Decimal
	AskVol  decimal.Decimal
	Time    time.Time
}

func (q *Quote) GetSymbol() Symbol              { return q.Symbol_ }
func (q *Quote) CloseTime() time.Time           { return q.Time }
func (q *Quote) GetResolution() Resolution      { return Instant() }
func (q *Quote) GetBaseDataType() BaseDataType  { return QuoteData }
func (q *Quote) IsClosed() bool                 { return true }
func (q *Quote) SetClosed(bool)                 {}
func (q *Quote) Subscription() DataSubscription {
	return DataSubscription{Symbol: q.Symbol_, Resolution: Instant(), BaseDataType: QuoteData, MarketType: q.Symbol_.MarketType}
}
func (q *Quote) Clone() BaseData { c := *q; return &c }

// Candle is an OHLCV bar over a single price series (trade prints or mid).
type Candle struct {
	Symbol_    Symbol
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	Range      decimal.Decimal
	Time       time.Time // close time of the bar
	Resolution_ Resolution
	Closed     bool
	Type       CandleType
}

func (c *Candle) GetSymbol() Symbol              { return c.Symbol_ }
func (c *Candle) CloseTime() time.Time           { return c.Time }
func (c *Candle) GetResolution() Resolution      { return c.Resolution_ }
func (c *Candle) GetBaseDataType() BaseDataType  { return CandleData }
func (c *Candle) IsClosed() bool                 { return c.Closed }
func (c *Candle) SetClosed(v bool)               { c.Closed = v }
func (c *Candle) Subscription() DataSubscription {
	ct := c.Type
	return DataSubscription{Symbol: c.Symbol_, Resolution: c.Resolution_, BaseDataType: CandleData, MarketType: c.Symbol_.MarketType, CandleType: &ct}
}
func (c *Candle) Clone() BaseData { cc := *c; return &cc }

// QuoteBar is an OHLC bar carried separately for the bid and ask side.
type QuoteBar struct {
	Symbol_    Symbol
	BidOpen    decimal.Decimal
	BidHigh    decimal.Decimal
	BidLow     decimal.Decimal
	BidClose   decimal.Decimal
	AskOpen    decimal.Decimal
	AskHigh    decimal.Decimal
	AskLow     decimal.Decimal
	AskClose   decimal.Decimal
	Volume     decimal.Decimal
	Time       time.Time
	Resolution_ Resolution
	Closed     bool
	Type       CandleType
}

func (q *QuoteBar) GetSymbol() Symbol              { return q.Symbol_ }
func (q *QuoteBar) CloseTime() time.Time           { return q.Time }
func (q *QuoteBar) GetResolution() Resolution      { return q.Resolution_ }
func (q *QuoteBar) GetBaseDataType() BaseDataType  { return QuoteBarData }
func (q *QuoteBar) IsClosed() bool                 { return q.Closed }
func (q *QuoteBar) SetClosed(v bool)               { q.Closed = v }
func (q *QuoteBar) Subscription() DataSubscription {
	ct := q.Type
	return DataSubscription{Symbol: q.Symbol_, Resolution: q.Resolution_, BaseDataType: QuoteBarData, MarketType: q.Symbol_.MarketType, CandleType: &ct}
}
func (q *QuoteBar) Clone() BaseData { c := *q; return &c }

// Fundamental is a slow-changing, non-price data point (e.g. an economic
// release); kept out of the consolidator pipeline entirely (§4.I step 1).
type Fundamental struct {
	Symbol_ Symbol
	Name    string
	Value   decimal.Decimal
	Time    time.Time
}

func (f *Fundamental) GetSymbol() Symbol              { return f.Symbol_ }
func (f *Fundamental) CloseTime() time.Time           { return f.Time }
func (f *Fundamental) GetResolution() Resolution      { return Instant() }
func (f *Fundamental) GetBaseDataType() BaseDataType  { return FundamentalData }
func (f *Fundamental) IsClosed() bool                 { return true }
func (f *Fundamental) SetClosed(bool)                 {}
func (f *Fundamental) Subscription() DataSubscription {
	return DataSubscription{Symbol: f.Symbol_, Resolution: Instant(), BaseDataType: FundamentalData, MarketType: f.Symbol_.MarketType}
}
func (f *Fundamental) Clone() BaseData { c := *f; return &c }

// TimeSlice is an ordered bundle of BaseData records sharing an
// engine-time bucket.
type TimeSlice []BaseData
