// Package debt implements the debt account manager: debts created from an
// order's unpaid remainder, direct debts and their repayments.
package debt

import (
	"context"
	"errors"
	"strings"

	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service manages customer debts
type Service struct {
	debts     debt.Repository
	orders    order.Repository
	publisher shared.EventPublisher
	metrics   *telemetry.POSMetrics
	logger    *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithEventPublisher publishes debt events after each commit
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics records debt counters
func WithMetrics(m *telemetry.POSMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new debt service
func NewService(debts debt.Repository, orders order.Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		debts:  debts,
		orders: orders,
		logger: logger.Named("debt"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDebtRequest moves part of an order's remainder onto a customer debt
type CreateDebtRequest struct {
	// CustomerID defaults to the order's customer when nil
	CustomerID   *uuid.UUID
	CustomerName string
	OrderID      uuid.UUID
	Amount       valueobject.Money
	Note         string
}

// CreateDebt records a debt against an order. The debt row is written first;
// if deferring the amount on the order fails, the debt is deleted again and
// the error is returned.
func (s *Service) CreateDebt(ctx context.Context, req CreateDebtRequest) (*debt.Debt, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "debt", "create_debt")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, req.OrderID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if !req.Amount.IsPositive() {
		err := shared.NewValidationError("debt amount must be positive")
		telemetry.RecordError(span, err)
		return nil, err
	}

	o, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		err = storageError("failed to load order", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if o.IsClosed() {
		err = shared.NewAlreadyPaidError("order %s is closed", o.Number)
		telemetry.RecordError(span, err)
		return nil, err
	}

	customerID, customerName := req.CustomerID, strings.TrimSpace(req.CustomerName)
	if customerID == nil {
		customerID = o.CustomerID
	}
	if customerID == nil {
		err = shared.NewValidationError("order %s has no customer, customer id is required", o.Number)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if customerName == "" {
		customerName = o.CustomerName
	}

	d, err := debt.NewDebt(*customerID, customerName, &o.ID, req.Amount, req.Note)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := o.DeferToDebt(d.ID, req.Amount); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.debts.Create(ctx, d); err != nil {
		err = storageError("failed to create debt", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.orders.SaveWithLock(ctx, o); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			err = shared.NewStaleStateError("order %s changed concurrently, refresh and retry", o.Number)
		} else {
			err = storageError("failed to defer amount on order", err)
		}
		if delErr := s.debts.Delete(ctx, d.ID); delErr != nil {
			s.logger.Error("Failed to remove debt after order write failed",
				zap.String("debt_id", d.ID.String()),
				zap.String("order_id", o.ID.String()),
				zap.Error(delErr),
			)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Debt created",
		zap.String("debt_id", d.ID.String()),
		zap.String("customer_id", d.CustomerID.String()),
		zap.String("order_id", o.ID.String()),
		zap.String("amount", d.Amount.String()),
		zap.String("order_status", string(o.PaymentStatus())),
	)
	s.afterCommit(ctx, d, o)
	s.metrics.RecordDebtCreated(ctx, false)
	telemetry.SetAttributes(span, telemetry.SpanAttrDebtID, d.ID.String())
	return d, nil
}

// CreateDirectDebtRequest creates a debt unlinked to any order
type CreateDirectDebtRequest struct {
	CustomerID   uuid.UUID
	CustomerName string
	Amount       valueobject.Money
	Note         string
}

// CreateDirectDebt records an off-ledger debt
func (s *Service) CreateDirectDebt(ctx context.Context, req CreateDirectDebtRequest) (*debt.Debt, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "debt", "create_direct_debt")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, req.CustomerID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	d, err := debt.NewDebt(req.CustomerID, req.CustomerName, nil, req.Amount, req.Note)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.debts.Create(ctx, d); err != nil {
		err = storageError("failed to create debt", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Direct debt created",
		zap.String("debt_id", d.ID.String()),
		zap.String("customer_id", d.CustomerID.String()),
		zap.String("amount", d.Amount.String()),
	)
	s.afterCommit(ctx, d)
	s.metrics.RecordDebtCreated(ctx, true)
	return d, nil
}

// PayDebtRequest repays part or all of a debt
type PayDebtRequest struct {
	DebtID uuid.UUID
	Amount valueobject.Money
	Method payment.Method
}

// PayDebt applies a repayment. A debt settles permanently once nothing remains.
func (s *Service) PayDebt(ctx context.Context, req PayDebtRequest) (*debt.Debt, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "debt", "pay_debt")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDebtID, req.DebtID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrMethod, string(req.Method),
	)

	d, err := s.debts.FindByID(ctx, req.DebtID)
	if err != nil {
		err = storageError("failed to load debt", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	if _, err := d.ApplyPayment(req.Amount, req.Method); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.debts.SaveWithLock(ctx, d); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			err = shared.NewStaleStateError("debt %s changed concurrently, refresh and retry", d.ID)
		} else {
			err = storageError("failed to save debt", err)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Debt payment recorded",
		zap.String("debt_id", d.ID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("remaining", d.Remaining().String()),
		zap.String("state", string(d.State)),
	)
	s.afterCommit(ctx, d)
	s.metrics.RecordPayment(ctx, "DEBT", string(req.Method), req.Amount.Minor())
	return d, nil
}

// GetDebt returns a debt by id
func (s *Service) GetDebt(ctx context.Context, id uuid.UUID) (*debt.Debt, error) {
	d, err := s.debts.FindByID(ctx, id)
	if err != nil {
		return nil, storageError("failed to load debt", err)
	}
	return d, nil
}

// ListCustomerDebts returns a customer's debts, newest first
func (s *Service) ListCustomerDebts(ctx context.Context, customerID uuid.UUID, includeSettled bool) ([]*debt.Debt, error) {
	debts, err := s.debts.FindByCustomer(ctx, customerID, includeSettled)
	if err != nil {
		return nil, storageError("failed to list debts", err)
	}
	return debts, nil
}

func (s *Service) afterCommit(ctx context.Context, aggregates ...shared.AggregateRoot) {
	var events []shared.DomainEvent
	for _, agg := range aggregates {
		events = append(events, agg.GetDomainEvents()...)
		agg.ClearDomainEvents()
	}
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish debt events", zap.Int("events", len(events)), zap.Error(err))
	}
}

func storageError(msg string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewPersistenceError(msg, err)
}
