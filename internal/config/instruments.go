package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// InstrumentEntry is one [[instruments]] row of instruments.toml: the
// per-symbol facts the data server needs to answer SymbolInfoReq,
// CommissionInfoReq and the Intraday/OvernightMarginRequired requests
// (spec §4.J) that a vendor.Adapter itself has no opinion on — tick
// size and decimal accuracy come from the vendor, but the dollar value
// of one tick, margin schedules, and commission are broker/contract
// facts configured per deployment.
type InstrumentEntry struct {
	SymbolName         string  `toml:"symbol_name"`
	Vendor             string  `toml:"vendor"`
	Market             string  `toml:"market"`
	ValuePerTick       float64 `toml:"value_per_tick"`
	PnlCurrency        string  `toml:"pnl_currency"`
	BaseCurrency       string  `toml:"base_currency"`
	MarginIntraday     float64 `toml:"margin_intraday"`
	MarginOvernight    float64 `toml:"margin_overnight"`
	CommissionRate     float64 `toml:"commission_rate"`
	CommissionMin      float64 `toml:"commission_min"`
	CommissionCurrency string  `toml:"commission_currency"`

	// TickSize and DecimalAccuracy seed the static per-vendor symbol
	// metadata table every vendor.Adapter constructor takes (the adapter
	// itself is the runtime authority on these for a live vendor; a
	// deployment configures its starting values here the same way it
	// configures commission and margin).
	TickSize        float64 `toml:"tick_size"`
	DecimalAccuracy uint32  `toml:"decimal_accuracy"`
}

// InstrumentTable is the parsed form of instruments.toml.
type InstrumentTable struct {
	Instruments []InstrumentEntry `toml:"instruments"`

	byKey map[string]InstrumentEntry
}

// LoadInstrumentTable parses instruments.toml at path and indexes its
// rows by Symbol.Key() for the lookups below.
func LoadInstrumentTable(path string) (*InstrumentTable, error) {
	var t InstrumentTable
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	t.index()
	return &t, nil
}

func (t *InstrumentTable) index() {
	t.byKey = make(map[string]InstrumentEntry, len(t.Instruments))
	for _, e := range t.Instruments {
		market, err := parseMarket(e.Market)
		if err != nil {
			continue
		}
		sym := domain.Symbol{Name: e.SymbolName, Vendor: e.Vendor, MarketType: market}
		t.byKey[sym.Key()] = e
	}
}

func (t *InstrumentTable) lookup(sym domain.Symbol) (InstrumentEntry, bool) {
	if t == nil {
		return InstrumentEntry{}, false
	}
	e, ok := t.byKey[sym.Key()]
	return e, ok
}

// SymbolInfo builds a domain.SymbolInfo for sym from the configured
// entry plus the vendor-reported tick size and decimal accuracy; the
// caller (internal/dataserver) supplies those two since only the vendor
// adapter knows them.
func (t *InstrumentTable) SymbolInfo(sym domain.Symbol, tickSize decimal.Decimal, decimalAccuracy uint32) (domain.SymbolInfo, error) {
	e, ok := t.lookup(sym)
	if !ok {
		return domain.SymbolInfo{}, fmt.Errorf("config: no instrument entry for %s", sym)
	}
	return domain.SymbolInfo{
		Symbol:          sym,
		TickSize:        tickSize,
		ValuePerTick:    decimal.NewFromFloat(e.ValuePerTick),
		DecimalAccuracy: decimalAccuracy,
		PnlCurrency:     e.PnlCurrency,
		BaseCurrency:    e.BaseCurrency,
	}, nil
}

// Commission implements internal/ledger.CommissionProvider.
func (t *InstrumentTable) Commission(sym domain.Symbol) (domain.CommissionInfo, bool) {
	e, ok := t.lookup(sym)
	if !ok {
		return domain.CommissionInfo{}, false
	}
	return domain.CommissionInfo{
		Symbol:          sym,
		Currency:        domain.Currency(e.CommissionCurrency),
		RatePerContract: decimal.NewFromFloat(e.CommissionRate),
		Minimum:         decimal.NewFromFloat(e.CommissionMin),
	}, true
}

// IntradayMargin and OvernightMargin adapt the same table to
// internal/ledger.MarginProvider under the two margin schedules the
// spec's IntradayMarginRequired/OvernightMarginRequired requests ask
// for (§4.J).
type IntradayMargin struct{ Table *InstrumentTable }

func (m IntradayMargin) MarginRequired(sym domain.Symbol, qty decimal.Decimal) (decimal.Decimal, error) {
	e, ok := m.Table.lookup(sym)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("config: no instrument entry for %s", sym)
	}
	return decimal.NewFromFloat(e.MarginIntraday).Mul(qty.Abs()), nil
}

// VendorSymbolMap builds the map[string]domain.SymbolInfo keyed by
// Symbol.Key() that every vendor.Adapter constructor in internal/vendor
// takes, restricted to vendorName's rows.
func (t *InstrumentTable) VendorSymbolMap(vendorName string) map[string]domain.SymbolInfo {
	out := make(map[string]domain.SymbolInfo)
	for _, e := range t.Instruments {
		if e.Vendor != vendorName {
			continue
		}
		market, err := parseMarket(e.Market)
		if err != nil {
			continue
		}
		sym := domain.Symbol{Name: e.SymbolName, Vendor: e.Vendor, MarketType: market}
		out[sym.Key()] = domain.SymbolInfo{
			Symbol:          sym,
			TickSize:        decimal.NewFromFloat(e.TickSize),
			ValuePerTick:    decimal.NewFromFloat(e.ValuePerTick),
			DecimalAccuracy: e.DecimalAccuracy,
			PnlCurrency:     e.PnlCurrency,
			BaseCurrency:    e.BaseCurrency,
		}
	}
	return out
}

type OvernightMargin struct{ Table *InstrumentTable }

func (m OvernightMargin) MarginRequired(sym domain.Symbol, qty decimal.Decimal) (decimal.Decimal, error) {
	e, ok := m.Table.lookup(sym)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("config: no instrument entry for %s", sym)
	}
	return decimal.NewFromFloat(e.MarginOvernight).Mul(qty.Abs()), nil
}

func parseMarket(s string) (domain.MarketType, error) {
	if exch, ok := strings.CutPrefix(s, "futures:"); ok {
		return domain.Futures(domain.Exchange(strings.ToUpper(exch))), nil
	}
	switch strings.ToLower(s) {
	case "forex":
		return domain.Forex(), nil
	case "cfd":
		return domain.CFD(), nil
	case "crypto":
		return domain.Crypto(), nil
	default:
		return domain.MarketType{}, fmt.Errorf("config: unknown market %q", s)
	}
}
