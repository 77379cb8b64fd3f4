package payment

import (
	"context"
	"errors"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CancelPayment reverses the most recent non-failed payment of an order and
// returns it. Cancelling an already cancelled payment succeeds without
// changing anything, so redelivered cancellations are harmless.
func (s *Processor) CancelPayment(ctx context.Context, orderID uuid.UUID, reason string) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "cancel_payment")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderID, orderID.String())

	p, err := s.payments.FindLatestForOrder(ctx, orderID)
	if err != nil {
		err = storageError("failed to load payment", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, p.ID.String())
	if p.Status == payment.StatusCancelled {
		telemetry.AddEvent(span, "already_cancelled")
		return p, nil
	}

	o, err := s.reverse(ctx, orderID, func(o *order.Order) (bool, error) {
		return o.ReverseAllocation(p.ID), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	changed, err := p.Cancel(reason)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if changed {
		if err := s.payments.SaveWithLock(ctx, p); err != nil {
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				err = storageError("failed to cancel payment", err)
				telemetry.RecordError(span, err)
				return nil, err
			}
			// Another terminal cancelled the same payment first
			fresh, ferr := s.payments.FindByID(ctx, p.ID)
			if ferr != nil || fresh.Status != payment.StatusCancelled {
				err = shared.NewStaleStateError("payment %s changed concurrently", p.ID)
				telemetry.RecordError(span, err)
				return nil, err
			}
			p = fresh
		}
	}

	s.logger.Info("Payment cancelled",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", orderID.String()),
		zap.String("reason", reason),
	)
	s.afterCommit(ctx, o, p)
	s.metrics.RecordCancellation(ctx, false)
	return p, nil
}

// CancelPaymentLinesRequest releases part of a payment
type CancelPaymentLinesRequest struct {
	PaymentID  uuid.UUID
	Selections []order.Selection
	Reason     string
}

// CancelPaymentLines releases the selected line quantities held by a payment.
// The payment becomes CANCELLED once it holds nothing.
func (s *Processor) CancelPaymentLines(ctx context.Context, req CancelPaymentLinesRequest) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "cancel_payment_lines")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, req.PaymentID.String())

	p, err := s.payments.FindByID(ctx, req.PaymentID)
	if err != nil {
		err = storageError("failed to load payment", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !p.Status.IsSettled() {
		err := shared.NewValidationError("payment %s is %s", p.ID, p.Status)
		telemetry.RecordError(span, err)
		return nil, err
	}

	var released valueobject.Money
	o, err := s.reverse(ctx, p.OrderID, func(o *order.Order) (bool, error) {
		var rerr error
		released, rerr = o.ReverseAllocationLines(p.ID, req.Selections)
		return rerr == nil, rerr
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	remaining := o.AllocatedTo(p.ID)
	// Payments made against deferred orders can be worth less than the
	// lines they hold
	if released.GreaterThan(p.Amount) || len(remaining) == 0 {
		released = p.Amount
	}
	if err := p.CancelLines(released, remaining, req.Reason); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.payments.SaveWithLock(ctx, p); err != nil {
		err = storageError("failed to update payment", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Payment lines cancelled",
		zap.String("payment_id", p.ID.String()),
		zap.String("released", released.String()),
		zap.String("status", string(p.Status)),
	)
	s.afterCommit(ctx, o, p)
	s.metrics.RecordCancellation(ctx, true)
	return p, nil
}

// reverse applies mutate to a fresh copy of the order and saves it, reloading
// and retrying when another writer bumped the version in between. mutate
// returns false when there was nothing to change.
func (s *Processor) reverse(ctx context.Context, orderID uuid.UUID, mutate func(*order.Order) (bool, error)) (*order.Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, storageError("failed to load order", err)
		}
		changed, err := mutate(o)
		if err != nil {
			return nil, err
		}
		if !changed {
			return o, nil
		}
		err = s.orders.SaveWithLock(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, storageError("failed to save order", err)
		}
		if attempt >= cancelAttempts {
			return nil, shared.NewStaleStateError("order %s keeps changing, refresh and retry", o.Number)
		}
		s.logger.Debug("Retrying reversal after version conflict",
			zap.String("order_id", orderID.String()),
			zap.Int("attempt", attempt),
		)
	}
}
