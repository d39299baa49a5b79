package domain

import "github.com/shopspring/decimal"

// AccountInfo is the wire payload used to seed a live Ledger from a
// brokerage's real account snapshot: positions plus the three cash figures
// (and the hedging flag) a broker reports on connect. PaperAccountInit uses
// the same shape with Positions empty and CashValue and CashAvailable set
// to the initial cash given in the request.
type AccountInfo struct {
	Account       string
	Brokerage     string
	Currency      string
	CashValue     decimal.Decimal
	CashAvailable decimal.Decimal
	CashUsed      decimal.Decimal
	IsHedging     bool
	Positions     []Position
}

// ExchangeRate is a CCY/CCY -> decimal lookup, served by the data
// server's ExchangeRate RPC. The ledger uses a rate only to convert a
// commission quoted in another currency; position PnL is not converted.
type ExchangeRate struct {
	From Currency
	To   Currency
	Rate decimal.Decimal
}

// Currency is an ISO-4217-ish three-letter code; kept as a distinct type
// (not a bare string) so exchange-rate and commission lookups can't be
// passed symbol names by mistake.
type Currency string

// CommissionInfo is the per-symbol commission schedule applied by the
// ledger on every fill, converted to account currency via ExchangeRate
// before being deducted from cash_available.
type CommissionInfo struct {
	Symbol          Symbol
	Currency        Currency
	RatePerContract decimal.Decimal
	Minimum         decimal.Decimal
}

// Apply returns the commission owed for a fill of the given quantity,
// respecting the per-fill minimum.
func (c CommissionInfo) Apply(quantity decimal.Decimal) decimal.Decimal {
	fee := c.RatePerContract.Mul(quantity.Abs())
	if fee.LessThan(c.Minimum) {
		return c.Minimum
	}
	return fee
}
