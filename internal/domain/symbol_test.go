package domain

import "testing"

func TestMarketTypeString(t *testing.T) {
	tests := []struct {
		name string
		mt   MarketType
		want string
	}{
		{"forex", Forex(), "Forex"},
		{"cfd", CFD(), "CFD"},
		{"crypto", Crypto(), "Crypto"},
		{"futures", Futures(ExchangeCME), "Futures(CME)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mt.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSymbolKeyDistinguishesVendorAndMarket(t *testing.T) {
	a := Symbol{Name: "EUR-USD", MarketType: Forex(), Vendor: "oanda"}
	b := Symbol{Name: "EUR-USD", MarketType: CFD(), Vendor: "oanda"}
	c := Symbol{Name: "EUR-USD", MarketType: Forex(), Vendor: "bitget"}

	if a.Key() == b.Key() {
		t.Error("symbols with different market types must not share a key")
	}
	if a.Key() == c.Key() {
		t.Error("symbols with different vendors must not share a key")
	}
	if a.Key() != (Symbol{Name: "EUR-USD", MarketType: Forex(), Vendor: "oanda"}).Key() {
		t.Error("identical symbols must share a key")
	}
}
