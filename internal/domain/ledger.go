package domain

import "github.com/shopspring/decimal"

// Ledger is the account-level book a strategy trades against: one per
// (account, brokerage). Mutating operations (fills, price ticks, bracket
// evaluation) live in package ledger; this type is the shared wire/storage
// shape both the data server and the strategy runtime serialize.
//
// Invariants: CashValue == CashAvailable + CashUsed; CashUsed >= 0; for
// every open position, margin_required(symbol, qty) <= CashAvailable at
// the moment the position was opened.
type Ledger struct {
	Account       string
	Brokerage     string
	Currency      Currency
	CashValue     decimal.Decimal
	CashAvailable decimal.Decimal
	CashUsed      decimal.Decimal

	OpenPositions    map[string]*Position   // keyed by Symbol.Key()
	ClosedPositions  map[string][]*Position // keyed by Symbol.Key()
	PositionCounter  map[string]uint64      // keyed by Symbol.Key(), per-symbol id sequence

	OpenPnl   decimal.Decimal
	BookedPnl decimal.Decimal
}

// NewLedger returns an empty ledger seeded with initialCash and no
// positions, ready for paper-trade fills.
func NewLedger(account, brokerage string, currency Currency, initialCash decimal.Decimal) *Ledger {
	return &Ledger{
		Account:         account,
		Brokerage:       brokerage,
		Currency:        currency,
		CashValue:       initialCash,
		CashAvailable:   initialCash,
		CashUsed:        decimal.Zero,
		OpenPositions:   make(map[string]*Position),
		ClosedPositions: make(map[string][]*Position),
		PositionCounter: make(map[string]uint64),
	}
}

// FromAccountInfo seeds a ledger from a live broker's account snapshot,
// splitting its flat position list into the open-positions map keyed by
// symbol.
func FromAccountInfo(info AccountInfo) *Ledger {
	l := &Ledger{
		Account:         info.Account,
		Brokerage:       info.Brokerage,
		Currency:        Currency(info.Currency),
		CashValue:       info.CashValue,
		CashAvailable:   info.CashAvailable,
		CashUsed:        info.CashUsed,
		OpenPositions:   make(map[string]*Position),
		ClosedPositions: make(map[string][]*Position),
		PositionCounter: make(map[string]uint64),
	}
	for i := range info.Positions {
		p := info.Positions[i]
		l.OpenPositions[p.Symbol.Key()] = &p
	}
	return l
}
