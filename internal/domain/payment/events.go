package payment

import (
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Event types. They double as push-transport event classes.
const (
	EventTypePaymentCancelled          = "payment:cancelled"
	EventTypePaymentPartiallyCancelled = "payment:partial-cancelled"
)

// PaymentCancelledEvent is raised when a payment's allocation is reversed
type PaymentCancelledEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID         `json:"payment_id"`
	OrderID   uuid.UUID         `json:"order_id"`
	Amount    valueobject.Money `json:"amount"`
	Reason    string            `json:"reason,omitempty"`
}

// NewPaymentCancelledEvent creates a new PaymentCancelledEvent
func NewPaymentCancelledEvent(p *Payment) *PaymentCancelledEvent {
	return &PaymentCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentCancelled, AggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		OrderID:         p.OrderID,
		Amount:          p.Amount,
		Reason:          p.CancelReason,
	}
}

// PaymentPartiallyCancelledEvent is raised when some lines of a payment are released
type PaymentPartiallyCancelledEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID         `json:"payment_id"`
	OrderID   uuid.UUID         `json:"order_id"`
	Released  valueobject.Money `json:"released"`
	Remaining valueobject.Money `json:"remaining"`
	Reason    string            `json:"reason,omitempty"`
}

// NewPaymentPartiallyCancelledEvent creates a new PaymentPartiallyCancelledEvent
func NewPaymentPartiallyCancelledEvent(p *Payment, released valueobject.Money) *PaymentPartiallyCancelledEvent {
	return &PaymentPartiallyCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentPartiallyCancelled, AggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		OrderID:         p.OrderID,
		Released:        released,
		Remaining:       p.Amount,
		Reason:          p.CancelReason,
	}
}
