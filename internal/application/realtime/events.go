// Package realtime keeps a cashier's local view in line with server truth:
// push events are decoded into a closed set of variants, deduplicated,
// debounced into refreshes, and replayed after reconnects.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Class is a push event class
type Class string

const (
	ClassOrderDelivered            Class = order.EventTypeOrderDelivered
	ClassOrderPaid                 Class = order.EventTypeOrderPaid
	ClassOrderStatusChanged        Class = order.EventTypeOrderStatusChanged
	ClassDebtCreated               Class = debt.EventTypeDebtCreated
	ClassDebtPaid                  Class = debt.EventTypeDebtPaid
	ClassPaymentCancelled          Class = payment.EventTypePaymentCancelled
	ClassPaymentPartiallyCancelled Class = payment.EventTypePaymentPartiallyCancelled
	ClassNotification              Class = "notification:new"
)

// Classes lists every class the reconciler accepts
var Classes = []Class{
	ClassOrderDelivered,
	ClassOrderPaid,
	ClassOrderStatusChanged,
	ClassDebtCreated,
	ClassDebtPaid,
	ClassPaymentCancelled,
	ClassPaymentPartiallyCancelled,
	ClassNotification,
}

// ErrUnknownEventClass is returned by Decode for classes outside Classes.
// Such events are dropped.
var ErrUnknownEventClass = errors.New("unknown event class")

// Event is one decoded push event. The set of implementations is closed.
type Event interface {
	Class() Class
	// EntityID is the primary entity the event is about; with Class it
	// forms the dedup key.
	EntityID() string
	isEvent()
}

// OrderDelivered announces a payment-eligible order
type OrderDelivered struct {
	OrderID  uuid.UUID `json:"order_id"`
	Number   string    `json:"number"`
	TableKey string    `json:"table_key"`
}

// OrderPaid announces an order that reached COMPLETAMENTE_PAGATO
type OrderPaid struct {
	OrderID  uuid.UUID         `json:"order_id"`
	Number   string            `json:"number"`
	TableKey string            `json:"table_key"`
	Total    valueobject.Money `json:"total"`
}

// OrderStatusChanged announces a statoPagamento transition
type OrderStatusChanged struct {
	OrderID   uuid.UUID         `json:"order_id"`
	TableKey  string            `json:"table_key"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Remaining valueobject.Money `json:"remaining"`
}

// DebtCreated announces a new debt
type DebtCreated struct {
	DebtID     uuid.UUID         `json:"debt_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	OrderID    *uuid.UUID        `json:"order_id,omitempty"`
	Amount     valueobject.Money `json:"amount"`
}

// DebtPaid announces a debt repayment
type DebtPaid struct {
	DebtID    uuid.UUID         `json:"debt_id"`
	Amount    valueobject.Money `json:"amount"`
	Remaining valueobject.Money `json:"remaining"`
	Settled   bool              `json:"settled"`
}

// PaymentCancelled announces a fully reversed payment
type PaymentCancelled struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Reason    string    `json:"reason,omitempty"`
}

// PaymentPartiallyCancelled announces released lines of a payment
type PaymentPartiallyCancelled struct {
	PaymentID uuid.UUID         `json:"payment_id"`
	OrderID   uuid.UUID         `json:"order_id"`
	Released  valueobject.Money `json:"released"`
}

// NotificationNew is a free-form notification; only some are relevant
type NotificationNew struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

func (OrderDelivered) Class() Class            { return ClassOrderDelivered }
func (OrderPaid) Class() Class                 { return ClassOrderPaid }
func (OrderStatusChanged) Class() Class        { return ClassOrderStatusChanged }
func (DebtCreated) Class() Class               { return ClassDebtCreated }
func (DebtPaid) Class() Class                  { return ClassDebtPaid }
func (PaymentCancelled) Class() Class          { return ClassPaymentCancelled }
func (PaymentPartiallyCancelled) Class() Class { return ClassPaymentPartiallyCancelled }
func (NotificationNew) Class() Class           { return ClassNotification }

func (e OrderDelivered) EntityID() string            { return e.OrderID.String() }
func (e OrderPaid) EntityID() string                 { return e.OrderID.String() }
func (e OrderStatusChanged) EntityID() string        { return e.OrderID.String() + ":" + e.To }
func (e DebtCreated) EntityID() string               { return e.DebtID.String() }
func (e DebtPaid) EntityID() string                  { return e.DebtID.String() + ":" + e.Remaining.String() }
func (e PaymentCancelled) EntityID() string          { return e.PaymentID.String() }
func (e PaymentPartiallyCancelled) EntityID() string { return e.PaymentID.String() + ":" + e.Released.String() }
func (e NotificationNew) EntityID() string           { return e.ID }

func (OrderDelivered) isEvent()            {}
func (OrderPaid) isEvent()                 {}
func (OrderStatusChanged) isEvent()        {}
func (DebtCreated) isEvent()               {}
func (DebtPaid) isEvent()                  {}
func (PaymentCancelled) isEvent()          {}
func (PaymentPartiallyCancelled) isEvent() {}
func (NotificationNew) isEvent()           {}

// Envelope is the wire form of a push event
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses the payload of a class into its variant. Unknown classes
// return ErrUnknownEventClass; payloads without an entity id are rejected.
func Decode(class string, payload []byte) (Event, error) {
	var ev Event
	var err error
	switch Class(class) {
	case ClassOrderDelivered:
		ev, err = decodeAs[OrderDelivered](payload)
	case ClassOrderPaid:
		ev, err = decodeAs[OrderPaid](payload)
	case ClassOrderStatusChanged:
		ev, err = decodeAs[OrderStatusChanged](payload)
	case ClassDebtCreated:
		ev, err = decodeAs[DebtCreated](payload)
	case ClassDebtPaid:
		ev, err = decodeAs[DebtPaid](payload)
	case ClassPaymentCancelled:
		ev, err = decodeAs[PaymentCancelled](payload)
	case ClassPaymentPartiallyCancelled:
		ev, err = decodeAs[PaymentPartiallyCancelled](payload)
	case ClassNotification:
		ev, err = decodeAs[NotificationNew](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventClass, class)
	}
	if err != nil {
		return nil, shared.NewValidationError("malformed %s payload: %v", class, err)
	}
	if !hasEntity(ev) {
		return nil, shared.NewValidationError("%s payload carries no entity id", class)
	}
	return ev, nil
}

// EncodeDomainEvent wraps a domain event into a wire envelope. The domain
// event's JSON form is the payload; its type is the class.
func EncodeDomainEvent(event shared.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", event.EventType(), err)
	}
	return json.Marshal(Envelope{Type: event.EventType(), Payload: payload})
}

// IsKnownClass reports whether class belongs to the accepted set
func IsKnownClass(class string) bool {
	for _, c := range Classes {
		if string(c) == class {
			return true
		}
	}
	return false
}

func decodeAs[T Event](payload []byte) (Event, error) {
	var v T
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func hasEntity(ev Event) bool {
	switch e := ev.(type) {
	case OrderDelivered:
		return e.OrderID != uuid.Nil
	case OrderPaid:
		return e.OrderID != uuid.Nil
	case OrderStatusChanged:
		return e.OrderID != uuid.Nil
	case DebtCreated:
		return e.DebtID != uuid.Nil
	case DebtPaid:
		return e.DebtID != uuid.Nil
	case PaymentCancelled:
		return e.PaymentID != uuid.Nil
	case PaymentPartiallyCancelled:
		return e.PaymentID != uuid.Nil
	case NotificationNew:
		return e.ID != ""
	}
	return false
}
