package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PositionSide is Long or Short.
type PositionSide uint8

const (
	Long PositionSide = iota
	Short
)

func (s PositionSide) String() string {
	if s == Short {
		return "Short"
	}
	return "Long"
}

// BracketKind tags the variant held by a Bracket.
type BracketKind uint8

const (
	BracketTakeProfit BracketKind = iota
	BracketStopLoss
	BracketTrailingStopLoss
)

func (k BracketKind) String() string {
	switch k {
	case BracketTakeProfit:
		return "TakeProfit"
	case BracketStopLoss:
		return "StopLoss"
	case BracketTrailingStopLoss:
		return "TrailingStopLoss"
	default:
		return "Unknown"
	}
}

// Bracket is a conditional close attached to a position. Price is the
// trigger level; Trail is only meaningful for TrailingStopLoss, and is
// the distance (in price terms) the stop trails behind the extreme.
type Bracket struct {
	Kind  BracketKind
	Price decimal.Decimal
	Trail decimal.Decimal
}

func (b Bracket) String() string {
	switch b.Kind {
	case BracketTakeProfit:
		return fmt.Sprintf("TakeProfit(%s)", b.Price)
	case BracketStopLoss:
		return fmt.Sprintf("StopLoss(%s)", b.Price)
	case BracketTrailingStopLoss:
		return fmt.Sprintf("TrailingStopLoss(%s, trail=%s)", b.Price, b.Trail)
	default:
		return "Unknown"
	}
}

// Position tracks one open or closed holding in a symbol under an account.
// ID format: {brokerage}-{account}-{symbol}-{epoch}-{counter}-{side}.
type Position struct {
	ID                   string
	Symbol               Symbol
	Account              string
	Side                 PositionSide
	Quantity             decimal.Decimal
	AveragePrice         decimal.Decimal
	OpenPnl              decimal.Decimal
	BookedPnl            decimal.Decimal
	HighestRecordedPrice decimal.Decimal
	LowestRecordedPrice  decimal.Decimal
	IsClosed             bool
	SymbolInfo           SymbolInfo
	Brackets             []Bracket
}

// GenerateID builds the canonical position identity for (brokerage, account,
// symbol, side) at a given epoch/counter pair. Called once per position at
// open time; the counter comes from the owning Ledger's per-symbol sequence.
func GenerateID(brokerage, account string, symbol Symbol, epoch int64, counter uint64, side PositionSide) string {
	return fmt.Sprintf("%s-%s-%s-%d-%d-%s", brokerage, account, symbol.Name, epoch, counter, side)
}

func (p *Position) String() string {
	return fmt.Sprintf("%s %s %s qty=%s avg=%s open_pnl=%s booked=%s", p.ID, p.Side, p.Symbol, p.Quantity, p.AveragePrice, p.OpenPnl, p.BookedPnl)
}
