// Package ledger implements the paper-trading margin accounting and
// bracket evaluation described in spec §4.K: market-order fills that
// open, add to, reduce or flip a position, price-tick updates that
// maintain open PnL and the position's recorded high/low, and bracket
// (take-profit / stop-loss / trailing-stop) triggers.
//
// Grounded on internal/domain's Ledger/Position shapes (the wire/storage
// types) the way fixclient/tradestore.go separates a storage struct from
// the mutating logic layered on top of it in fixclient/fixapp.go.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundforge/fundforge/internal/domain"
)

// Error taxonomy, spec §4.K / §7.
var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrUnknownSymbol     = errors.New("ledger: unknown symbol")
	ErrUnsupportedMarket = errors.New("ledger: unsupported market")
)

// MarginProvider resolves the margin a broker requires to hold qty
// contracts of symbol. Concrete tables are config-driven (per-exchange,
// per-symbol schedules); this package only consumes the interface.
type MarginProvider interface {
	MarginRequired(symbol domain.Symbol, qty decimal.Decimal) (decimal.Decimal, error)
}

// FlatMargin is a MarginProvider charging a fixed per-contract margin
// regardless of symbol, useful for tests and for a single-instrument
// paper-trading configuration.
type FlatMargin struct {
	PerContract decimal.Decimal
}

func (f FlatMargin) MarginRequired(_ domain.Symbol, qty decimal.Decimal) (decimal.Decimal, error) {
	return f.PerContract.Mul(qty.Abs()), nil
}

// CommissionProvider resolves the per-fill commission schedule for a
// symbol (spec §3 supplements: "CommissionInfo ... applied by the ledger
// on every fill").
type CommissionProvider interface {
	Commission(symbol domain.Symbol) (domain.CommissionInfo, bool)
}

// RateProvider resolves a CCY/CCY exchange rate, used to convert a
// commission quoted in a foreign currency into the ledger's own
// currency before it is deducted from cash_available.
type RateProvider interface {
	Rate(from, to domain.Currency) (decimal.Decimal, error)
}

// Book wraps one domain.Ledger with the single-writer mutex spec §5
// mandates ("one lock per account") plus the margin schedule fills are
// checked against. Commission and Rates are optional (nil skips
// commission deduction entirely, e.g. in unit tests).
type Book struct {
	mu         sync.Mutex
	ledger     *domain.Ledger
	margin     MarginProvider
	commission CommissionProvider
	rates      RateProvider
	log        zerolog.Logger
}

// NewBook wraps ledger for mutation. margin may not be nil.
func NewBook(ledger *domain.Ledger, margin MarginProvider, log zerolog.Logger) *Book {
	return &Book{
		ledger: ledger,
		margin: margin,
		log:    log.With().Str("component", "ledger").Str("account", ledger.Account).Logger(),
	}
}

// WithCommission attaches a commission schedule and exchange-rate source
// for fills on this book; subsequent Fill calls deduct commission from
// cash_available.
func (b *Book) WithCommission(commission CommissionProvider, rates RateProvider) *Book {
	b.commission = commission
	b.rates = rates
	return b
}

// Ledger returns a snapshot of the wrapped domain.Ledger. Callers must
// not mutate maps reachable from it; it is a shallow copy taken under
// the book's lock.
func (b *Book) Ledger() domain.Ledger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.ledger
}

// Fill implements the paper-trade market-order update_or_create
// algorithm of spec §4.K: qty is signed (positive buys, negative sells).
// Returns the resulting position (nil if the fill fully closed it) and
// the pnl booked by this fill (zero unless the fill reduced or flipped
// an existing position).
func (b *Book) Fill(info domain.SymbolInfo, qty, price decimal.Decimal, now time.Time, brackets []domain.Bracket) (*domain.Position, decimal.Decimal, error) {
	if qty.IsZero() {
		return nil, decimal.Zero, fmt.Errorf("ledger: zero-quantity fill for %s", info.Symbol)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pos, booked, err := b.fillLocked(info, qty, price, now, brackets)
	if err != nil {
		return nil, decimal.Zero, err
	}
	b.chargeCommission(info.Symbol, qty.Abs())
	return pos, booked, nil
}

func (b *Book) fillLocked(info domain.SymbolInfo, qty, price decimal.Decimal, now time.Time, brackets []domain.Bracket) (*domain.Position, decimal.Decimal, error) {
	key := info.Symbol.Key()
	existing, hasExisting := b.ledger.OpenPositions[key]

	if !hasExisting {
		pos, err := b.openNew(info, qty, price, now, brackets)
		if err != nil {
			return nil, decimal.Zero, err
		}
		return pos, decimal.Zero, nil
	}

	fillSide := domain.Long
	if qty.IsNegative() {
		fillSide = domain.Short
	}

	if fillSide == existing.Side {
		if err := b.addToPosition(existing, info, qty.Abs(), price); err != nil {
			return nil, decimal.Zero, err
		}
		return existing, decimal.Zero, nil
	}

	return b.reduceOrFlip(existing, info, qty.Abs(), price, now, brackets)
}

// chargeCommission deducts the commission owed on a fill of absQty from
// cash_available, converting from the commission's own currency to the
// ledger's currency via RateProvider when they differ. Missing schedules
// or rate lookups are logged and skipped rather than failing the fill —
// a paper ledger with no configured commission table trades
// commission-free.
func (b *Book) chargeCommission(symbol domain.Symbol, absQty decimal.Decimal) {
	if b.commission == nil {
		return
	}
	info, ok := b.commission.Commission(symbol)
	if !ok {
		return
	}
	fee := info.Apply(absQty)
	if info.Currency != b.ledger.Currency && info.Currency != "" {
		if b.rates == nil {
			b.log.Warn().Str("symbol", symbol.String()).Msg("commission currency mismatch with no RateProvider, skipping")
			return
		}
		rate, err := b.rates.Rate(info.Currency, b.ledger.Currency)
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", symbol.String()).Msg("exchange rate lookup failed, skipping commission")
			return
		}
		fee = fee.Mul(rate)
	}
	b.ledger.CashAvailable = b.ledger.CashAvailable.Sub(fee)
	b.syncCashValue()
}

// openNew creates a brand-new position, requiring enough cash_available
// to cover margin_required(symbol, qty) (spec §4.K step 3).
func (b *Book) openNew(info domain.SymbolInfo, qty, price decimal.Decimal, now time.Time, brackets []domain.Bracket) (*domain.Position, error) {
	side := domain.Long
	absQty := qty
	if qty.IsNegative() {
		side = domain.Short
		absQty = qty.Neg()
	}

	required, err := b.margin.MarginRequired(info.Symbol, absQty)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownSymbol, info.Symbol, err)
	}
	if b.ledger.CashAvailable.LessThan(required) {
		return nil, ErrInsufficientFunds
	}

	key := info.Symbol.Key()
	b.ledger.PositionCounter[key]++
	counter := b.ledger.PositionCounter[key]

	pos := &domain.Position{
		ID:                   domain.GenerateID(b.ledger.Brokerage, b.ledger.Account, info.Symbol, now.Unix(), counter, side),
		Symbol:               info.Symbol,
		Account:              b.ledger.Account,
		Side:                 side,
		Quantity:             absQty,
		AveragePrice:         price,
		HighestRecordedPrice: price,
		LowestRecordedPrice:  price,
		SymbolInfo:           info,
		Brackets:             brackets,
	}

	b.ledger.OpenPositions[key] = pos
	b.ledger.CashUsed = b.ledger.CashUsed.Add(required)
	b.ledger.CashAvailable = b.ledger.CashAvailable.Sub(required)
	b.syncCashValue()
	return pos, nil
}

// addToPosition adds addQty (always positive) to an existing same-side
// position: require margin for the added size, recompute the
// size-weighted average price (spec §4.K step 2).
func (b *Book) addToPosition(pos *domain.Position, info domain.SymbolInfo, addQty, price decimal.Decimal) error {
	required, err := b.margin.MarginRequired(info.Symbol, addQty)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnknownSymbol, info.Symbol, err)
	}
	if b.ledger.CashAvailable.LessThan(required) {
		return ErrInsufficientFunds
	}

	totalQty := pos.Quantity.Add(addQty)
	weighted := pos.AveragePrice.Mul(pos.Quantity).Add(price.Mul(addQty))
	pos.AveragePrice = weighted.DivRound(totalQty, int32(info.DecimalAccuracy)+4)
	pos.Quantity = totalQty

	b.ledger.CashUsed = b.ledger.CashUsed.Add(required)
	b.ledger.CashAvailable = b.ledger.CashAvailable.Sub(required)
	b.syncCashValue()
	b.recomputeOpenPnl(pos, price)
	return nil
}

// reduceOrFlip handles a fill on the opposite side of an open position:
// books realized pnl on the closed portion, releases its margin, and —
// if the fill size exceeds the open quantity — opens a new position on
// the flipped side with the remainder (spec §4.K step 1).
func (b *Book) reduceOrFlip(pos *domain.Position, info domain.SymbolInfo, fillQty, price decimal.Decimal, now time.Time, brackets []domain.Bracket) (*domain.Position, decimal.Decimal, error) {
	closedQty := decimal.Min(fillQty, pos.Quantity)
	booked := bookedPnl(pos.Side, pos.AveragePrice, price, closedQty, info)

	released, err := b.margin.MarginRequired(info.Symbol, closedQty)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("%w: %s: %v", ErrUnknownSymbol, info.Symbol, err)
	}

	pos.BookedPnl = pos.BookedPnl.Add(booked)
	pos.Quantity = pos.Quantity.Sub(closedQty)
	b.ledger.BookedPnl = b.ledger.BookedPnl.Add(booked)
	b.ledger.CashUsed = b.ledger.CashUsed.Sub(released)
	b.ledger.CashAvailable = b.ledger.CashAvailable.Add(released).Add(booked)
	b.syncCashValue()

	key := info.Symbol.Key()
	remainder := fillQty.Sub(closedQty)

	if pos.Quantity.IsZero() {
		pos.IsClosed = true
		delete(b.ledger.OpenPositions, key)
		b.ledger.ClosedPositions[key] = append(b.ledger.ClosedPositions[key], pos)

		if remainder.IsPositive() {
			flipQty := remainder
			if pos.Side == domain.Long {
				flipQty = flipQty.Neg()
			}
			flipped, err := b.openNew(info, flipQty, price, now, brackets)
			if err != nil {
				return nil, booked, err
			}
			return flipped, booked, nil
		}
		return nil, booked, nil
	}

	b.recomputeOpenPnl(pos, price)
	return pos, booked, nil
}

// bookedPnl computes the realized pnl on closedQty of a fill closing a
// position at price, per spec §4.K step 1's formula, rounded to the
// symbol's tick size.
func bookedPnl(side domain.PositionSide, avgPrice, price, closedQty decimal.Decimal, info domain.SymbolInfo) decimal.Decimal {
	var diff decimal.Decimal
	if side == domain.Long {
		diff = price.Sub(avgPrice)
	} else {
		diff = avgPrice.Sub(price)
	}
	diff = info.RoundToTick(diff)
	if info.TickSize.IsZero() {
		return decimal.Zero
	}
	ticks := diff.Div(info.TickSize)
	return ticks.Mul(info.ValuePerTick).Mul(closedQty)
}

// PriceUpdate applies a price tick to every open position on data's
// symbol (spec §4.K "Price-tick update"): refreshes the recorded
// high/low and open pnl, then evaluates brackets in order. Returns the
// positions that closed as a result (bracket-triggered) along with the
// pnl booked on each.
func (b *Book) PriceUpdate(data domain.BaseData) []ClosedByBracket {
	bid, ask, last, ok := closeSides(data)
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.ledger.OpenPositions[data.GetSymbol().Key()]
	if !ok {
		return nil
	}

	projected := last
	if pos.Side == domain.Long && !bid.IsZero() {
		projected = bid
	} else if pos.Side == domain.Short && !ask.IsZero() {
		projected = ask
	}

	if pos.HighestRecordedPrice.IsZero() || projected.GreaterThan(pos.HighestRecordedPrice) {
		pos.HighestRecordedPrice = projected
	}
	if pos.LowestRecordedPrice.IsZero() || projected.LessThan(pos.LowestRecordedPrice) {
		pos.LowestRecordedPrice = projected
	}
	b.recomputeOpenPnl(pos, projected)

	trigger, reason := evaluateBrackets(pos, projected)
	if !trigger {
		return nil
	}

	booked := pos.OpenPnl
	pos.BookedPnl = pos.BookedPnl.Add(booked)
	pos.OpenPnl = decimal.Zero
	pos.IsClosed = true

	released, err := b.margin.MarginRequired(pos.Symbol, pos.Quantity)
	if err == nil {
		b.ledger.CashUsed = b.ledger.CashUsed.Sub(released)
		b.ledger.CashAvailable = b.ledger.CashAvailable.Add(released).Add(booked)
	}
	b.ledger.BookedPnl = b.ledger.BookedPnl.Add(booked)
	b.syncCashValue()

	key := pos.Symbol.Key()
	delete(b.ledger.OpenPositions, key)
	b.ledger.ClosedPositions[key] = append(b.ledger.ClosedPositions[key], pos)

	return []ClosedByBracket{{Position: pos, Booked: booked, Reason: reason}}
}

// ClosedByBracket reports a position a PriceUpdate closed via bracket
// evaluation.
type ClosedByBracket struct {
	Position *domain.Position
	Booked   decimal.Decimal
	Reason   domain.BracketKind
}

// evaluateBrackets scans pos.Brackets in order and reports the first one
// that triggers at the given projected price (spec §4.K: take-profit,
// stop-loss, trailing-stop, each with long/short-specific comparisons).
func evaluateBrackets(pos *domain.Position, price decimal.Decimal) (bool, domain.BracketKind) {
	for i := range pos.Brackets {
		br := &pos.Brackets[i]
		switch br.Kind {
		case domain.BracketTakeProfit:
			if (pos.Side == domain.Long && price.GreaterThanOrEqual(br.Price)) ||
				(pos.Side == domain.Short && price.LessThanOrEqual(br.Price)) {
				return true, domain.BracketTakeProfit
			}
		case domain.BracketStopLoss:
			if (pos.Side == domain.Long && price.LessThanOrEqual(br.Price)) ||
				(pos.Side == domain.Short && price.GreaterThanOrEqual(br.Price)) {
				return true, domain.BracketStopLoss
			}
		case domain.BracketTrailingStopLoss:
			if pos.Side == domain.Long {
				candidate := pos.HighestRecordedPrice.Sub(br.Trail)
				if candidate.GreaterThan(br.Price) {
					br.Price = candidate
				}
				if price.LessThanOrEqual(br.Price) {
					return true, domain.BracketTrailingStopLoss
				}
			} else {
				candidate := pos.LowestRecordedPrice.Add(br.Trail)
				if br.Price.IsZero() || candidate.LessThan(br.Price) {
					br.Price = candidate
				}
				if price.GreaterThanOrEqual(br.Price) {
					return true, domain.BracketTrailingStopLoss
				}
			}
		}
	}
	return false, 0
}

func (b *Book) recomputeOpenPnl(pos *domain.Position, price decimal.Decimal) {
	if pos.SymbolInfo.TickSize.IsZero() {
		return
	}
	var diff decimal.Decimal
	if pos.Side == domain.Long {
		diff = price.Sub(pos.AveragePrice)
	} else {
		diff = pos.AveragePrice.Sub(price)
	}
	diff = pos.SymbolInfo.RoundToTick(diff)
	ticks := diff.Div(pos.SymbolInfo.TickSize)
	old := pos.OpenPnl
	pos.OpenPnl = ticks.Mul(pos.SymbolInfo.ValuePerTick).Mul(pos.Quantity)
	b.ledger.OpenPnl = b.ledger.OpenPnl.Sub(old).Add(pos.OpenPnl)
}

func (b *Book) syncCashValue() {
	b.ledger.CashValue = b.ledger.CashAvailable.Add(b.ledger.CashUsed)
}

// closeSides extracts (bid, ask, last) from a BaseData variant for
// price-projection purposes (spec §4.K: "bid for long-close projection,
// ask for short-close projection on QuoteBar/Quote; close on Candle").
func closeSides(data domain.BaseData) (bid, ask, last decimal.Decimal, ok bool) {
	switch d := data.(type) {
	case *domain.Tick:
		return d.Bid, d.Ask, d.Price, true
	case *domain.Quote:
		return d.Bid, d.Ask, decimal.Zero, true
	case *domain.Candle:
		return decimal.Zero, decimal.Zero, d.Close, true
	case *domain.QuoteBar:
		return d.BidClose, d.AskClose, decimal.Zero, true
	default:
		return decimal.Zero, decimal.Zero, decimal.Zero, false
	}
}
