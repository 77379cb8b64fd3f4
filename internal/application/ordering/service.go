// Package ordering takes orders in from the order source, tracks delivery
// and serves the read-only table views.
package ordering

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service handles order intake and table views
type Service struct {
	orders    order.Repository
	publisher shared.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new ordering service. publisher may be nil.
func NewService(orders order.Repository, publisher shared.EventPublisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orders:    orders,
		publisher: publisher,
		logger:    logger.Named("ordering"),
		now:       time.Now,
	}
}

// RegisterOrderRequest is an order as received from the order source
type RegisterOrderRequest struct {
	Number       string
	TableRef     string
	CustomerID   *uuid.UUID
	CustomerName string
	Waiter       string
	Lines        []order.LineInput
	Delivered    bool
}

// RegisterOrder stores a new order. Orders may arrive already delivered.
func (s *Service) RegisterOrder(ctx context.Context, req RegisterOrderRequest) (*order.Order, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ordering", "register_order")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderNumber, req.Number,
		telemetry.SpanAttrTableKey, req.TableRef,
	)

	o, err := order.NewOrder(req.Number, req.TableRef, req.Lines)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	o.WithCustomer(req.CustomerID, req.CustomerName).WithWaiter(strings.TrimSpace(req.Waiter))
	if req.Delivered {
		o.MarkDelivered(s.now())
	}

	if err := s.orders.Create(ctx, o); err != nil {
		err = storageError("failed to create order", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Order registered",
		zap.String("order_id", o.ID.String()),
		zap.String("number", o.Number),
		zap.String("table", o.TableKey().String()),
		zap.String("total", o.Total().String()),
	)
	s.publish(ctx, o)
	return o, nil
}

// MarkDelivered makes an order payment-eligible. Repeated calls are no-ops.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ordering", "mark_delivered")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderID, id.String())

	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		err = storageError("failed to load order", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !o.MarkDelivered(s.now()) {
		return o, nil
	}
	if err := s.orders.SaveWithLock(ctx, o); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			err = shared.NewStaleStateError("order %s changed concurrently", o.Number)
		} else {
			err = storageError("failed to save order", err)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, o)
	return o, nil
}

// CloseOrder removes a fully paid order from the open set
func (s *Service) CloseOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ordering", "close_order")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderID, id.String())

	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		err = storageError("failed to load order", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if o.IsClosed() {
		return o, nil
	}
	if err := o.Close(s.now()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.orders.SaveWithLock(ctx, o); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			err = shared.NewStaleStateError("order %s changed concurrently", o.Number)
		} else {
			err = storageError("failed to save order", err)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	return o, nil
}

// GetOrder returns an order by id
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, storageError("failed to load order", err)
	}
	return o, nil
}

// ListOpenOrders returns every order not yet closed
func (s *Service) ListOpenOrders(ctx context.Context) ([]*order.Order, error) {
	orders, err := s.orders.FindOpen(ctx)
	if err != nil {
		return nil, storageError("failed to list orders", err)
	}
	return orders, nil
}

// ListTableGroups groups the open orders by table
func (s *Service) ListTableGroups(ctx context.Context) ([]order.TableGroup, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ordering", "list_table_groups")
	defer span.End()

	orders, err := s.ListOpenOrders(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	groups := order.ComputeTableGroups(orders)
	telemetry.SetAttributes(span, "orders", len(orders), "groups", len(groups))
	return groups, nil
}

// GetTableGroup returns the group of one table key
func (s *Service) GetTableGroup(ctx context.Context, key string) (*order.TableGroup, error) {
	tk := order.ParseTableKey(key)
	if tk.Kind == order.KindNone {
		return nil, shared.NewValidationError("table key is required")
	}
	orders, err := s.orders.FindOpenByTable(ctx, tk.Code)
	if err != nil {
		return nil, storageError("failed to load table orders", err)
	}
	if len(orders) == 0 {
		return nil, shared.ErrNotFound
	}
	groups := order.ComputeTableGroups(orders)
	return &groups[0], nil
}

func (s *Service) publish(ctx context.Context, o *order.Order) {
	events := o.GetDomainEvents()
	o.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish order events", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

func storageError(msg string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewPersistenceError(msg, err)
}
