// Package payment holds the Payment aggregate: one committed (or failed)
// attempt to settle part of an order.
package payment

import (
	"strings"
	"time"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypePayment is the aggregate type for payments
const AggregateTypePayment = "Payment"

// Method is how the customer paid
type Method string

const (
	MethodCash     Method = "contanti"
	MethodCard     Method = "carta"
	MethodSatispay Method = "satispay"
	// MethodTab charges the order to a running tab (scalar account)
	MethodTab Method = "conto"
)

// IsValid checks if the method is known
func (m Method) IsValid() bool {
	switch m {
	case MethodCash, MethodCard, MethodSatispay, MethodTab:
		return true
	}
	return false
}

// Mode records which processor operation created the payment
type Mode string

const (
	ModeFull    Mode = "FULL"
	ModePartial Mode = "PARTIAL"
	ModeTable   Mode = "TABLE"
	ModeMulti   Mode = "MULTI"
)

// Status is the payment lifecycle state
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusCompleted          Status = "COMPLETED"
	StatusFailed             Status = "FAILED"
	StatusPartiallyCancelled Status = "PARTIALLY_CANCELLED"
	StatusCancelled          Status = "CANCELLED"
)

// IsSettled reports whether the payment currently holds ledger allocations
func (s Status) IsSettled() bool {
	return s == StatusCompleted || s == StatusPartiallyCancelled
}

// Payment is a transaction settling all or part of an order's remainder
type Payment struct {
	shared.BaseAggregateRoot
	OrderID       uuid.UUID
	BatchID       *uuid.UUID
	Mode          Mode
	Amount        valueobject.Money
	Method        Method
	Payer         string
	Selections    []order.Selection
	Status        Status
	FailureReason string
	CancelReason  string
	CancelledAt   *time.Time
}

// NewPayment creates a PENDING payment
func NewPayment(orderID uuid.UUID, mode Mode, amount valueobject.Money, method Method, payer string, selections []order.Selection) (*Payment, error) {
	if orderID == uuid.Nil {
		return nil, shared.NewValidationError("order id is required")
	}
	if !method.IsValid() {
		return nil, shared.NewValidationError("unknown payment method %q", method)
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	if len(selections) == 0 {
		return nil, shared.NewValidationError("payment must select at least one line")
	}
	return &Payment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderID:           orderID,
		Mode:              mode,
		Amount:            amount,
		Method:            method,
		Payer:             strings.TrimSpace(payer),
		Selections:        append([]order.Selection(nil), selections...),
		Status:            StatusPending,
	}, nil
}

// InBatch tags the payment as one leg of a table or multi-order payment
func (p *Payment) InBatch(batchID uuid.UUID) *Payment {
	p.BatchID = &batchID
	return p
}

// Complete marks the payment as committed on the ledger
func (p *Payment) Complete() error {
	if p.Status != StatusPending {
		return shared.NewValidationError("cannot complete payment in status %s", p.Status)
	}
	p.Status = StatusCompleted
	p.IncrementVersion()
	return nil
}

// Fail records why the ledger rejected the payment
func (p *Payment) Fail(reason string) {
	if p.Status != StatusPending {
		return
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.IncrementVersion()
}

// Cancel marks the payment cancelled. Returns false if it already was.
func (p *Payment) Cancel(reason string) (bool, error) {
	switch p.Status {
	case StatusCancelled:
		return false, nil
	case StatusFailed:
		return false, shared.NewValidationError("payment %s failed and cannot be cancelled", p.ID)
	}
	now := time.Now()
	p.Status = StatusCancelled
	p.CancelReason = reason
	p.CancelledAt = &now
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentCancelledEvent(p))
	return true, nil
}

// CancelLines records a partial cancellation releasing value from the payment.
// remaining is what the payment still holds on the ledger afterwards.
func (p *Payment) CancelLines(released valueobject.Money, remaining []order.Selection, reason string) error {
	if !p.Status.IsSettled() {
		return shared.NewValidationError("cannot cancel lines of payment in status %s", p.Status)
	}
	if !released.IsPositive() || released.GreaterThan(p.Amount) {
		return shared.NewValidationError("released amount %s is not within payment amount %s", released, p.Amount)
	}
	now := time.Now()
	p.Amount = p.Amount.Sub(released)
	p.Selections = append([]order.Selection(nil), remaining...)
	p.CancelReason = reason
	p.CancelledAt = &now
	if len(remaining) == 0 || p.Amount.IsZero() {
		p.Status = StatusCancelled
	} else {
		p.Status = StatusPartiallyCancelled
	}
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentPartiallyCancelledEvent(p, released))
	return nil
}
