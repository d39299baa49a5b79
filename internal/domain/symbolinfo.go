package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolInfo carries the per-symbol facts a ledger needs to price a fill:
// tick granularity, the cash value of one tick move, and the currency PnL
// is denominated in. Invariant: TickSize * 10^DecimalAccuracy is integral.
type SymbolInfo struct {
	Symbol          Symbol
	TickSize        decimal.Decimal
	ValuePerTick    decimal.Decimal
	DecimalAccuracy uint32
	PnlCurrency     string
	BaseCurrency    string // empty when the symbol has no distinct base currency
}

// RoundToTick rounds price to the nearest multiple of TickSize.
func (si SymbolInfo) RoundToTick(price decimal.Decimal) decimal.Decimal {
	if si.TickSize.IsZero() {
		return price
	}
	ticks := price.Div(si.TickSize).Round(0)
	return ticks.Mul(si.TickSize)
}

func (si SymbolInfo) String() string {
	return fmt.Sprintf("%s tick=%s value_per_tick=%s ccy=%s", si.Symbol, si.TickSize, si.ValuePerTick, si.PnlCurrency)
}
