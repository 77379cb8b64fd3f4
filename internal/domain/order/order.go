// Package order holds the Order aggregate. Its lines carry the per-line
// payment allocations, which makes the aggregate the line-item payment
// ledger: every paid/unpaid figure of an order is derived from them.
package order

import (
	"strings"
	"time"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypeOrder is the aggregate type for orders
const AggregateTypeOrder = "Order"

// PaymentStatus is the derived payment state of an order (statoPagamento)
type PaymentStatus string

const (
	StatusUnpaid        PaymentStatus = "NON_PAGATO"
	StatusPartiallyPaid PaymentStatus = "PARZIALMENTE_PAGATO"
	StatusPaid          PaymentStatus = "COMPLETAMENTE_PAGATO"
)

// String returns the string representation
func (s PaymentStatus) String() string {
	return string(s)
}

// Selection asks for a quantity of one order line
type Selection struct {
	LineID   uuid.UUID `json:"line_id"`
	Quantity int       `json:"quantity"`
}

// Allocation is the paid portion of a line attributed to one payment
type Allocation struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	Quantity    int       `json:"quantity"`
	Payer       string    `json:"payer,omitempty"`
	AllocatedAt time.Time `json:"allocated_at"`
}

// Line is one product entry within an order
type Line struct {
	ID          uuid.UUID
	ProductName string
	UnitPrice   valueobject.Money
	Quantity    int
	Allocations []Allocation
}

// PaidQuantity is the sum of all allocated quantities
func (l *Line) PaidQuantity() int {
	paid := 0
	for _, a := range l.Allocations {
		paid += a.Quantity
	}
	return paid
}

// RemainingQuantity is the unpaid quantity of the line
func (l *Line) RemainingQuantity() int {
	return l.Quantity - l.PaidQuantity()
}

// PaidBy returns payer names in allocation order, without duplicates
func (l *Line) PaidBy() []string {
	seen := make(map[string]bool)
	payers := make([]string, 0, len(l.Allocations))
	for _, a := range l.Allocations {
		if a.Payer == "" || seen[a.Payer] {
			continue
		}
		seen[a.Payer] = true
		payers = append(payers, a.Payer)
	}
	return payers
}

// Total is unit price times quantity
func (l *Line) Total() valueobject.Money {
	return l.UnitPrice.Times(l.Quantity)
}

// Outstanding is the value of the unpaid quantity
func (l *Line) Outstanding() valueobject.Money {
	return l.UnitPrice.Times(l.RemainingQuantity())
}

// Deferral is an amount of the order's remainder moved onto a customer debt
type Deferral struct {
	DebtID     uuid.UUID         `json:"debt_id"`
	Amount     valueobject.Money `json:"amount"`
	DeferredAt time.Time         `json:"deferred_at"`
}

// LineInput describes a line when an order is registered
type LineInput struct {
	ProductName string
	UnitPrice   valueobject.Money
	Quantity    int
}

// Order is a customer's placed order
type Order struct {
	shared.BaseAggregateRoot
	Number       string
	TableRef     string
	CustomerID   *uuid.UUID
	CustomerName string
	Waiter       string
	Lines        []Line
	Deferrals    []Deferral
	OpenedAt     time.Time
	DeliveredAt  *time.Time
	ClosedAt     *time.Time
}

// NewOrder registers an order received from the order source
func NewOrder(number, tableRef string, lines []LineInput) (*Order, error) {
	if strings.TrimSpace(number) == "" {
		return nil, shared.NewValidationError("order number cannot be empty")
	}
	if len(lines) == 0 {
		return nil, shared.NewValidationError("order must have at least one line")
	}

	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Number:            number,
		TableRef:          strings.TrimSpace(tableRef),
		Lines:             make([]Line, 0, len(lines)),
		OpenedAt:          time.Now(),
	}

	for i, in := range lines {
		if strings.TrimSpace(in.ProductName) == "" {
			return nil, shared.NewValidationError("line %d: product name cannot be empty", i+1)
		}
		if in.Quantity <= 0 {
			return nil, shared.NewValidationError("line %d: quantity must be positive", i+1)
		}
		if in.UnitPrice.IsNegative() {
			return nil, shared.NewValidationError("line %d: unit price cannot be negative", i+1)
		}
		o.Lines = append(o.Lines, Line{
			ID:          uuid.New(),
			ProductName: in.ProductName,
			UnitPrice:   in.UnitPrice,
			Quantity:    in.Quantity,
		})
	}

	return o, nil
}

// WithCustomer attaches the customer reference
func (o *Order) WithCustomer(id *uuid.UUID, name string) *Order {
	o.CustomerID = id
	o.CustomerName = strings.TrimSpace(name)
	return o
}

// WithWaiter records the waiter who took the order
func (o *Order) WithWaiter(waiter string) *Order {
	o.Waiter = waiter
	return o
}

// MarkDelivered makes the order payment-eligible. Repeated calls are no-ops.
func (o *Order) MarkDelivered(at time.Time) bool {
	if o.DeliveredAt != nil {
		return false
	}
	o.DeliveredAt = &at
	o.IncrementVersion()
	o.AddDomainEvent(NewOrderDeliveredEvent(o))
	return true
}

// IsDelivered reports whether the order can accept payments
func (o *Order) IsDelivered() bool {
	return o.DeliveredAt != nil
}

// Close removes a fully paid order from the open set. Closed orders stay queryable.
func (o *Order) Close(at time.Time) error {
	if o.ClosedAt != nil {
		return nil
	}
	if o.PaymentStatus() != StatusPaid {
		return shared.NewValidationError("order %s still has %s to pay", o.Number, o.Remaining())
	}
	o.ClosedAt = &at
	o.IncrementVersion()
	return nil
}

// IsClosed reports whether the order left the open set
func (o *Order) IsClosed() bool {
	return o.ClosedAt != nil
}

// Line returns the line with the given id
func (o *Order) Line(id uuid.UUID) (*Line, bool) {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return &o.Lines[i], true
		}
	}
	return nil, false
}

// Total is the sum of all line totals
func (o *Order) Total() valueobject.Money {
	total := valueobject.Zero
	for i := range o.Lines {
		total = total.Add(o.Lines[i].Total())
	}
	return total
}

// LineOutstanding is the value of every unpaid line quantity
func (o *Order) LineOutstanding() valueobject.Money {
	out := valueobject.Zero
	for i := range o.Lines {
		out = out.Add(o.Lines[i].Outstanding())
	}
	return out
}

// Deferred is the part of the order moved onto debts
func (o *Order) Deferred() valueobject.Money {
	deferred := valueobject.Zero
	for _, d := range o.Deferrals {
		deferred = deferred.Add(d.Amount)
	}
	return deferred
}

// Remaining is what is still due on the order, never negative
func (o *Order) Remaining() valueobject.Money {
	return valueobject.Max(o.LineOutstanding().Sub(o.Deferred()), valueobject.Zero)
}

// TotalPaid is Total - Remaining
func (o *Order) TotalPaid() valueobject.Money {
	return o.Total().Sub(o.Remaining())
}

// PaymentStatus derives statoPagamento from the ledger
func (o *Order) PaymentStatus() PaymentStatus {
	return deriveStatus(o.Total(), o.Remaining())
}

func deriveStatus(total, remaining valueobject.Money) PaymentStatus {
	switch {
	case remaining.IsZero() || remaining.IsNegative():
		return StatusPaid
	case remaining.LessThan(total):
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// TableKey classifies the order's table reference
func (o *Order) TableKey() TableKey {
	return ParseTableKey(o.TableRef)
}
