package order

import (
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Event types. They double as push-transport event classes.
const (
	EventTypeOrderDelivered     = "order:delivered"
	EventTypeOrderPaid          = "order:paid"
	EventTypeOrderStatusChanged = "order:status-change"
)

// OrderDeliveredEvent is raised when an order becomes payment-eligible
type OrderDeliveredEvent struct {
	shared.BaseDomainEvent
	OrderID  uuid.UUID `json:"order_id"`
	Number   string    `json:"number"`
	TableKey string    `json:"table_key"`
}

// NewOrderDeliveredEvent creates a new OrderDeliveredEvent
func NewOrderDeliveredEvent(o *Order) *OrderDeliveredEvent {
	return &OrderDeliveredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderDelivered, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		Number:          o.Number,
		TableKey:        o.TableKey().String(),
	}
}

// OrderPaidEvent is raised when an order reaches COMPLETAMENTE_PAGATO
type OrderPaidEvent struct {
	shared.BaseDomainEvent
	OrderID  uuid.UUID         `json:"order_id"`
	Number   string            `json:"number"`
	TableKey string            `json:"table_key"`
	Total    valueobject.Money `json:"total"`
}

// NewOrderPaidEvent creates a new OrderPaidEvent
func NewOrderPaidEvent(o *Order) *OrderPaidEvent {
	return &OrderPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderPaid, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		Number:          o.Number,
		TableKey:        o.TableKey().String(),
		Total:           o.Total(),
	}
}

// OrderStatusChangedEvent is raised whenever statoPagamento changes
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID   uuid.UUID         `json:"order_id"`
	TableKey  string            `json:"table_key"`
	From      PaymentStatus     `json:"from"`
	To        PaymentStatus     `json:"to"`
	Remaining valueobject.Money `json:"remaining"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(o *Order, from, to PaymentStatus) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		TableKey:        o.TableKey().String(),
		From:            from,
		To:              to,
		Remaining:       o.Remaining(),
	}
}
