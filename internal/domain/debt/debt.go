// Package debt holds customer debts: deferred payment obligations created
// from an order's unpaid remainder or directly at the till.
package debt

import (
	"strings"
	"time"

	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypeDebt is the aggregate type for debts
const AggregateTypeDebt = "Debt"

// State represents the state of a debt
type State string

const (
	StateOpen    State = "OPEN"
	StateSettled State = "SETTLED"
)

// IsValid checks if the state is valid
func (s State) IsValid() bool {
	return s == StateOpen || s == StateSettled
}

// IsTerminal returns true if the debt can no longer change
func (s State) IsTerminal() bool {
	return s == StateSettled
}

// DebtPayment is one repayment applied to a debt
type DebtPayment struct {
	ID     uuid.UUID         `json:"id"`
	Amount valueobject.Money `json:"amount"`
	Method payment.Method    `json:"method"`
	PaidAt time.Time         `json:"paid_at"`
}

// Debt is a deferred-payment obligation tied to a customer
type Debt struct {
	shared.BaseAggregateRoot
	CustomerID    uuid.UUID
	CustomerName  string
	SourceOrderID *uuid.UUID
	Amount        valueobject.Money
	Payments      []DebtPayment
	Note          string
	State         State
	SettledAt     *time.Time
}

// NewDebt creates an OPEN debt. sourceOrderID is nil for direct debts.
func NewDebt(customerID uuid.UUID, customerName string, sourceOrderID *uuid.UUID, amount valueobject.Money, note string) (*Debt, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("customer id is required")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("debt amount must be positive")
	}

	d := &Debt{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		CustomerName:      strings.TrimSpace(customerName),
		SourceOrderID:     sourceOrderID,
		Amount:            amount,
		Payments:          make([]DebtPayment, 0),
		Note:              note,
		State:             StateOpen,
	}
	d.AddDomainEvent(NewDebtCreatedEvent(d))
	return d, nil
}

// IsDirect reports whether the debt is unlinked to any order
func (d *Debt) IsDirect() bool {
	return d.SourceOrderID == nil
}

// PaidAmount is the sum of all repayments
func (d *Debt) PaidAmount() valueobject.Money {
	paid := valueobject.Zero
	for _, p := range d.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

// Remaining is Amount minus repayments
func (d *Debt) Remaining() valueobject.Money {
	return d.Amount.Sub(d.PaidAmount())
}

// ApplyPayment records a repayment. The debt settles permanently when
// nothing remains.
func (d *Debt) ApplyPayment(amount valueobject.Money, method payment.Method) (*DebtPayment, error) {
	if d.State.IsTerminal() {
		return nil, shared.NewAlreadySettledError("debt %s is already settled", d.ID)
	}
	if !method.IsValid() || method == payment.MethodTab {
		return nil, shared.NewValidationError("payment method %q cannot repay a debt", method)
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	if amount.GreaterThan(d.Remaining()) {
		return nil, shared.NewValidationError("payment amount %s exceeds remaining %s", amount, d.Remaining())
	}

	p := DebtPayment{
		ID:     uuid.New(),
		Amount: amount,
		Method: method,
		PaidAt: time.Now(),
	}
	d.Payments = append(d.Payments, p)

	if d.Remaining().IsZero() {
		d.State = StateSettled
		d.SettledAt = &p.PaidAt
	}
	d.IncrementVersion()
	d.AddDomainEvent(NewDebtPaidEvent(d, p))
	return &p, nil
}
