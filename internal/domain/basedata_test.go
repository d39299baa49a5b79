package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testSymbol() Symbol {
	return Symbol{Name: "EUR-USD", MarketType: Forex(), Vendor: "oanda"}
}

func TestBaseDataSubscriptionRoundTrip(t *testing.T) {
	sym := testSymbol()
	now := time.Now().UTC()

	tests := []struct {
		name string
		bd   BaseData
		want BaseDataType
	}{
		{"tick", &Tick{Symbol_: sym, Price: d("1.1000"), Volume: d("1"), Time: now}, TickData},
		{"quote", &Quote{Symbol_: sym, Bid: d("1.0999"), Ask: d("1.1001"), Time: now}, QuoteData},
		{"candle", &Candle{Symbol_: sym, Resolution_: Minutes(1), Time: now}, CandleData},
		{"quotebar", &QuoteBar{Symbol_: sym, Resolution_: Minutes(1), Time: now}, QuoteBarData},
		{"fundamental", &Fundamental{Symbol_: sym, Name: "CPI", Value: d("3.1"), Time: now}, FundamentalData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bd.GetBaseDataType(); got != tt.want {
				t.Errorf("GetBaseDataType() = %s, want %s", got, tt.want)
			}
			sub := tt.bd.Subscription()
			if sub.BaseDataType != tt.want {
				t.Errorf("Subscription().BaseDataType = %s, want %s", sub.BaseDataType, tt.want)
			}
			if sub.Symbol != sym {
				t.Errorf("Subscription().Symbol = %v, want %v", sub.Symbol, sym)
			}
		})
	}
}

func TestCandleCloneIsIndependent(t *testing.T) {
	c := &Candle{Symbol_: testSymbol(), Open: d("1"), Close: d("1"), Resolution_: Minutes(1)}
	clone := c.Clone().(*Candle)
	clone.Close = d("2")
	if c.Close.Equal(clone.Close) {
		t.Error("Clone must not alias the original candle's fields")
	}
}

func TestTickGetResolutionIsTicks1(t *testing.T) {
	tick := &Tick{Symbol_: testSymbol(), Time: time.Now()}
	if !tick.GetResolution().Equal(Ticks(1)) {
		t.Errorf("Tick.GetResolution() = %s, want Ticks(1)", tick.GetResolution())
	}
}

func TestDataSubscriptionStringIncludesCandleType(t *testing.T) {
	ct := CandleType{Kind: CandleRenko, BrickSize: d("0.0010")}
	sub := DataSubscription{
		Symbol:       testSymbol(),
		Resolution:   Minutes(1),
		BaseDataType: CandleData,
		MarketType:   Forex(),
		CandleType:   &ct,
	}
	got := sub.String()
	want := "oanda:Forex:EUR-USD Minutes(1) Candles[Renko(0.001)]"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
