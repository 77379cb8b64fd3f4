package debt

import (
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Event types. They double as push-transport event classes.
const (
	EventTypeDebtCreated = "debt:created"
	EventTypeDebtPaid    = "debt:paid"
)

// DebtCreatedEvent is raised when a debt is opened
type DebtCreatedEvent struct {
	shared.BaseDomainEvent
	DebtID       uuid.UUID         `json:"debt_id"`
	CustomerID   uuid.UUID         `json:"customer_id"`
	CustomerName string            `json:"customer_name"`
	OrderID      *uuid.UUID        `json:"order_id,omitempty"`
	Amount       valueobject.Money `json:"amount"`
}

// NewDebtCreatedEvent creates a new DebtCreatedEvent
func NewDebtCreatedEvent(d *Debt) *DebtCreatedEvent {
	return &DebtCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDebtCreated, AggregateTypeDebt, d.ID),
		DebtID:          d.ID,
		CustomerID:      d.CustomerID,
		CustomerName:    d.CustomerName,
		OrderID:         d.SourceOrderID,
		Amount:          d.Amount,
	}
}

// DebtPaidEvent is raised for every repayment
type DebtPaidEvent struct {
	shared.BaseDomainEvent
	DebtID    uuid.UUID         `json:"debt_id"`
	PaymentID uuid.UUID         `json:"payment_id"`
	Amount    valueobject.Money `json:"amount"`
	Remaining valueobject.Money `json:"remaining"`
	Settled   bool              `json:"settled"`
}

// NewDebtPaidEvent creates a new DebtPaidEvent
func NewDebtPaidEvent(d *Debt, p DebtPayment) *DebtPaidEvent {
	return &DebtPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDebtPaid, AggregateTypeDebt, d.ID),
		DebtID:          d.ID,
		PaymentID:       p.ID,
		Amount:          p.Amount,
		Remaining:       d.Remaining(),
		Settled:         d.State == StateSettled,
	}
}
