package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderAction tags the kind of order mutation an OrderRequest asks for.
type OrderAction uint8

const (
	OrderCreate OrderAction = iota
	OrderCancel
	OrderUpdate
	OrderCancelAll
	OrderFlattenAllFor
)

func (a OrderAction) String() string {
	switch a {
	case OrderCreate:
		return "Create"
	case OrderCancel:
		return "Cancel"
	case OrderUpdate:
		return "Update"
	case OrderCancelAll:
		return "CancelAll"
	case OrderFlattenAllFor:
		return "FlattenAllFor"
	default:
		return "Unknown"
	}
}

// OrderRequest is the strategy-to-vendor order routing envelope. Quantity
// is signed: positive buys, negative sells. Brackets attach conditional
// closes that the vendor (or, for paper trading, the ledger itself)
// evaluates against subsequent price ticks.
type OrderRequest struct {
	Action    OrderAction
	OrderID   string // set by caller for Cancel/Update, assigned by vendor for Create
	Account   string
	Symbol    Symbol
	Quantity  decimal.Decimal
	LimitPrice decimal.Decimal // zero value means market order
	Brackets  []Bracket
}

// OrderStatus reports where an order sits in its lifecycle.
type OrderStatus uint8

const (
	OrderAccepted OrderStatus = iota
	OrderFilled
	OrderPartiallyFilled
	OrderCancelled
	OrderRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderAccepted:
		return "Accepted"
	case OrderFilled:
		return "Filled"
	case OrderPartiallyFilled:
		return "PartiallyFilled"
	case OrderCancelled:
		return "Cancelled"
	case OrderRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// OrderUpdateEvent is the stream a vendor adapter emits in reply to
// OrderRequests: acks, fills, rejects, and cancel confirmations all flow
// through this one shape.
type OrderUpdateEvent struct {
	OrderID      string
	Account      string
	Symbol       Symbol
	Status       OrderStatus
	FilledQty    decimal.Decimal
	FilledPrice  decimal.Decimal
	RejectReason string // populated only when Status == OrderRejected
}

func (e OrderUpdateEvent) String() string {
	if e.Status == OrderRejected {
		return fmt.Sprintf("OrderUpdate(%s, %s, %s: %s)", e.OrderID, e.Symbol, e.Status, e.RejectReason)
	}
	return fmt.Sprintf("OrderUpdate(%s, %s, %s, filled=%s@%s)", e.OrderID, e.Symbol, e.Status, e.FilledQty, e.FilledPrice)
}
