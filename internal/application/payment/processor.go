// Package payment implements the payment transaction processor: it creates and
// cancels payments and is the only writer of line allocations on orders.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReceiptIssuer asks the external receipt service to print a receipt.
// It is only called after a payment committed.
type ReceiptIssuer interface {
	IssueReceipt(ctx context.Context, orderID uuid.UUID) error
}

// DefaultTolerance is the accepted difference between a tendered amount and
// the outstanding value
var DefaultTolerance = valueobject.Cents(1)

// cancelAttempts bounds the reload-and-retry loop of a reversal that lost a
// version race; reversals are idempotent so retrying is safe.
const cancelAttempts = 3

// Processor creates and cancels payments
type Processor struct {
	orders    order.Repository
	payments  payment.Repository
	publisher shared.EventPublisher
	receipts  ReceiptIssuer
	metrics   *telemetry.POSMetrics
	logger    *zap.Logger
	tolerance valueobject.Money
}

// Option configures a Processor
type Option func(*Processor)

// WithEventPublisher publishes domain events after each commit
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(pr *Processor) { pr.publisher = p }
}

// WithReceiptIssuer requests receipts after each commit
func WithReceiptIssuer(r ReceiptIssuer) Option {
	return func(pr *Processor) { pr.receipts = r }
}

// WithMetrics records payment counters
func WithMetrics(m *telemetry.POSMetrics) Option {
	return func(pr *Processor) { pr.metrics = m }
}

// WithTolerance overrides DefaultTolerance
func WithTolerance(t valueobject.Money) Option {
	return func(pr *Processor) {
		if !t.IsNegative() {
			pr.tolerance = t
		}
	}
}

// NewProcessor creates a new Processor
func NewProcessor(orders order.Repository, payments payment.Repository, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		orders:    orders,
		payments:  payments,
		logger:    logger.Named("payment"),
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PayOrderRequest pays the whole outstanding amount of an order
type PayOrderRequest struct {
	OrderID uuid.UUID
	Amount  valueobject.Money
	Method  payment.Method
	Payer   string
}

// PayPartialRequest pays an explicit subset of line quantities
type PayPartialRequest struct {
	OrderID    uuid.UUID
	Selections []order.Selection
	Method     payment.Method
	Payer      string
	// Amount, when set, must match the selection value within tolerance
	Amount *valueobject.Money
}

// PayOrder settles everything still outstanding on an order. The tendered
// amount must match the outstanding amount within tolerance; the payment
// records the exact outstanding amount.
func (s *Processor) PayOrder(ctx context.Context, req PayOrderRequest) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "pay_order")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, req.OrderID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrMethod, string(req.Method),
	)

	o, err := s.loadPayable(ctx, req.OrderID)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordPaymentFailure(ctx, string(payment.ModeFull), errorCode(err))
		return nil, err
	}

	outstanding := o.Remaining()
	if !req.Amount.Within(outstanding, s.tolerance) {
		err := shared.NewValidationError("amount %s does not match outstanding %s", req.Amount, outstanding)
		telemetry.RecordError(span, err)
		s.metrics.RecordPaymentFailure(ctx, string(payment.ModeFull), errorCode(err))
		return nil, err
	}

	p, err := s.settle(ctx, o, payment.ModeFull, outstanding, o.OutstandingSelections(), req.Method, req.Payer, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, p.ID.String())
	return p, nil
}

// PayPartial pays the selected line quantities of one order
func (s *Processor) PayPartial(ctx context.Context, req PayPartialRequest) (*payment.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "pay_partial")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, req.OrderID.String(),
		telemetry.SpanAttrMethod, string(req.Method),
		"selections", len(req.Selections),
	)

	o, err := s.loadPayable(ctx, req.OrderID)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordPaymentFailure(ctx, string(payment.ModePartial), errorCode(err))
		return nil, err
	}

	value, err := s.priceSelection(o, req.Selections, req.Amount)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordPaymentFailure(ctx, string(payment.ModePartial), errorCode(err))
		return nil, err
	}

	p, err := s.settle(ctx, o, payment.ModePartial, value, req.Selections, req.Method, req.Payer, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, p.ID.String())
	return p, nil
}

// ListOrderPayments returns an order's payments, newest first
func (s *Processor) ListOrderPayments(ctx context.Context, orderID uuid.UUID) ([]*payment.Payment, error) {
	payments, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, storageError("failed to list payments", err)
	}
	return payments, nil
}

// GetPayment returns a payment by id
func (s *Processor) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, storageError("failed to load payment", err)
	}
	return p, nil
}

// loadPayable loads an order and checks it can take a payment
func (s *Processor) loadPayable(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storageError("failed to load order", err)
	}
	if !o.IsDelivered() {
		return nil, shared.NewValidationError("order %s has not been delivered yet", o.Number)
	}
	if o.IsClosed() || !o.Remaining().IsPositive() {
		return nil, shared.NewAlreadyPaidError("order %s has nothing left to pay", o.Number)
	}
	return o, nil
}

// priceSelection values a selection and checks it against the order and the
// optional tendered amount
func (s *Processor) priceSelection(o *order.Order, selections []order.Selection, tendered *valueobject.Money) (valueobject.Money, error) {
	value, err := o.SelectionValue(selections)
	if err != nil {
		return valueobject.Zero, err
	}
	if !o.FitsSelection(selections) {
		return valueobject.Zero, shared.NewOverAllocationError("selection exceeds unpaid quantities of order %s", o.Number)
	}
	if value.GreaterThan(o.Remaining()) {
		return valueobject.Zero, shared.NewValidationError("selection value %s exceeds remaining %s", value, o.Remaining())
	}
	if tendered != nil && !tendered.Within(value, s.tolerance) {
		return valueobject.Zero, shared.NewValidationError("amount %s does not match selection value %s", *tendered, value)
	}
	return value, nil
}

// settle runs the commit protocol for one payment leg:
// persist PENDING, allocate on the order, save the order with its version
// lock, then mark the payment COMPLETED. Side effects run only after commit.
func (s *Processor) settle(
	ctx context.Context,
	o *order.Order,
	mode payment.Mode,
	amount valueobject.Money,
	selections []order.Selection,
	method payment.Method,
	payer string,
	batchID *uuid.UUID,
) (*payment.Payment, error) {
	p, err := payment.NewPayment(o.ID, mode, amount, method, payer, selections)
	if err != nil {
		s.metrics.RecordPaymentFailure(ctx, string(mode), errorCode(err))
		return nil, err
	}
	if batchID != nil {
		p.InBatch(*batchID)
	}

	if err := s.payments.Create(ctx, p); err != nil {
		s.metrics.RecordPaymentFailure(ctx, string(mode), shared.CodePersistence)
		return nil, storageError("failed to record payment", err)
	}

	if err := o.AllocatePayment(p.ID, selections, p.Payer); err != nil {
		s.fail(ctx, p, err)
		return nil, err
	}

	if err := s.orders.SaveWithLock(ctx, o); err != nil {
		err = s.explainLockFailure(ctx, o.ID, selections, err)
		s.fail(ctx, p, err)
		return nil, err
	}

	if err := p.Complete(); err != nil {
		return nil, err
	}
	if err := s.payments.SaveWithLock(ctx, p); err != nil {
		// The ledger already holds the allocation; the caller must reconcile.
		s.logger.Error("Payment committed on ledger but status update failed",
			zap.String("payment_id", p.ID.String()),
			zap.String("order_id", o.ID.String()),
			zap.Error(err),
		)
		return nil, storageError("failed to complete payment", err)
	}

	s.logger.Info("Payment completed",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", o.ID.String()),
		zap.String("mode", string(mode)),
		zap.String("method", string(method)),
		zap.String("amount", amount.String()),
		zap.String("status", string(o.PaymentStatus())),
	)

	s.afterCommit(ctx, o, p)
	s.metrics.RecordPayment(ctx, string(mode), string(method), amount.Minor())
	s.issueReceipt(ctx, o.ID)
	return p, nil
}

// explainLockFailure turns a lost version race into a business error:
// OVER_ALLOCATION when the selection no longer fits the fresh order,
// STALE_STATE otherwise.
func (s *Processor) explainLockFailure(ctx context.Context, orderID uuid.UUID, selections []order.Selection, saveErr error) error {
	if !errors.Is(saveErr, shared.ErrConcurrencyConflict) {
		return storageError("failed to save order", saveErr)
	}
	fresh, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return storageError("failed to reload order", err)
	}
	if !fresh.FitsSelection(selections) {
		return shared.NewOverAllocationError("lines of order %s were paid concurrently", fresh.Number)
	}
	return shared.NewStaleStateError("order %s changed concurrently, refresh and retry", fresh.Number)
}

func (s *Processor) fail(ctx context.Context, p *payment.Payment, cause error) {
	s.metrics.RecordPaymentFailure(ctx, string(p.Mode), errorCode(cause))
	p.Fail(cause.Error())
	if err := s.payments.SaveWithLock(ctx, p); err != nil {
		s.logger.Warn("Failed to mark payment as failed",
			zap.String("payment_id", p.ID.String()),
			zap.Error(err),
		)
	}
}

// afterCommit publishes pending domain events of the given aggregates
func (s *Processor) afterCommit(ctx context.Context, aggregates ...shared.AggregateRoot) {
	var events []shared.DomainEvent
	for _, agg := range aggregates {
		events = append(events, agg.GetDomainEvents()...)
		agg.ClearDomainEvents()
	}
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish payment events", zap.Int("events", len(events)), zap.Error(err))
	}
}

func (s *Processor) issueReceipt(ctx context.Context, orderID uuid.UUID) {
	if s.receipts == nil {
		return
	}
	if err := s.receipts.IssueReceipt(ctx, orderID); err != nil {
		s.logger.Warn("Receipt request failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
}

// storageError passes domain errors through and wraps everything else as a
// persistence failure
func storageError(msg string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewPersistenceError(msg, err)
}

func errorCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "UNKNOWN"
}

// String renders a leg outcome for logs
func (l LegResult) String() string {
	if l.Err != nil {
		return fmt.Sprintf("%s %s: %v", l.OrderNumber, l.Outcome, l.Err)
	}
	return fmt.Sprintf("%s %s", l.OrderNumber, l.Outcome)
}
