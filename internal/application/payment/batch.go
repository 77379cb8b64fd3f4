package payment

import (
	"context"
	"sort"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LegOutcome is the result of one leg of a table or multi-order payment
type LegOutcome string

const (
	LegSucceeded LegOutcome = "succeeded"
	LegFailed    LegOutcome = "failed"
	LegSkipped   LegOutcome = "skipped"
)

// LegResult reports one order of a batch. Legs commit independently.
type LegResult struct {
	OrderID     uuid.UUID
	OrderNumber string
	Outcome     LegOutcome
	Payment     *payment.Payment
	// Remaining is the order's remainder after this leg
	Remaining valueobject.Money
	Err       error
}

// BatchResult reports every leg of a table or multi-order payment
type BatchResult struct {
	BatchID uuid.UUID
	Legs    []LegResult
	// TotalPaid sums the succeeded legs
	TotalPaid valueobject.Money
	// RimanenteComplessivo is what is still owed over all legs' orders
	RimanenteComplessivo valueobject.Money
}

// Payments returns the payments of the succeeded legs
func (r *BatchResult) Payments() []*payment.Payment {
	var out []*payment.Payment
	for _, l := range r.Legs {
		if l.Outcome == LegSucceeded {
			out = append(out, l.Payment)
		}
	}
	return out
}

// Failed returns the failed legs
func (r *BatchResult) Failed() []LegResult {
	var out []LegResult
	for _, l := range r.Legs {
		if l.Outcome == LegFailed {
			out = append(out, l)
		}
	}
	return out
}

// AllSucceeded is true when no leg failed
func (r *BatchResult) AllSucceeded() bool {
	return len(r.Failed()) == 0
}

func (r *BatchResult) add(leg LegResult) {
	r.Legs = append(r.Legs, leg)
	r.RimanenteComplessivo = r.RimanenteComplessivo.Add(leg.Remaining)
	if leg.Outcome == LegSucceeded {
		r.TotalPaid = r.TotalPaid.Add(leg.Payment.Amount)
	}
}

// PayTableRequest pays every open order of a table
type PayTableRequest struct {
	TableKey string
	Method   payment.Method
	Payer    string
}

// PayTable pays the open orders of a table one after the other. Each leg is
// an independent commit: a failing leg does not undo earlier legs, and the
// outcome of every leg is reported. Orders with nothing left are skipped.
func (s *Processor) PayTable(ctx context.Context, req PayTableRequest) (*BatchResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "pay_table")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTableKey, req.TableKey,
		telemetry.SpanAttrMethod, string(req.Method),
	)

	key := order.ParseTableKey(req.TableKey)
	if key.Kind == order.KindNone {
		err := shared.NewValidationError("table key is required")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !req.Method.IsValid() {
		err := shared.NewValidationError("unknown payment method %q", req.Method)
		telemetry.RecordError(span, err)
		return nil, err
	}

	orders, err := s.orders.FindOpenByTable(ctx, key.Code)
	if err != nil {
		err = storageError("failed to load table orders", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(orders) == 0 {
		err := shared.NewValidationError("no open orders on table %s", key.Code)
		telemetry.RecordError(span, err)
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OpenedAt.Before(orders[j].OpenedAt)
	})

	result := &BatchResult{BatchID: uuid.New()}
	for _, o := range orders {
		leg := LegResult{OrderID: o.ID, OrderNumber: o.Number, Remaining: o.Remaining()}
		switch {
		case !o.Remaining().IsPositive():
			leg.Outcome = LegSkipped
		case !o.IsDelivered():
			leg.Outcome = LegFailed
			leg.Err = shared.NewValidationError("order %s has not been delivered yet", o.Number)
		default:
			p, err := s.settle(ctx, o, payment.ModeTable, o.Remaining(), o.OutstandingSelections(), req.Method, req.Payer, &result.BatchID)
			leg = s.legFromSettle(o, leg, p, err)
		}
		result.add(leg)
	}

	s.logBatch(result, "table", key.Code)
	telemetry.SetAttributes(span,
		"legs", len(result.Legs),
		"failed_legs", len(result.Failed()),
		"rimanente", result.RimanenteComplessivo.String(),
	)
	return result, nil
}

// MultiOrderLeg selects what to pay on one order. Empty selections pay the
// whole remainder of the order.
type MultiOrderLeg struct {
	OrderID    uuid.UUID
	Selections []order.Selection
}

// PayMultiOrderRequest lets one payer settle parts of several orders
type PayMultiOrderRequest struct {
	Legs   []MultiOrderLeg
	Method payment.Method
	Payer  string
}

// PayMultiOrder pays selections across several orders for one payer. Like
// PayTable every leg commits on its own.
func (s *Processor) PayMultiOrder(ctx context.Context, req PayMultiOrderRequest) (*BatchResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "pay_multi_order")
	defer span.End()
	telemetry.SetAttributes(span,
		"legs", len(req.Legs),
		telemetry.SpanAttrMethod, string(req.Method),
	)

	if len(req.Legs) == 0 {
		err := shared.NewValidationError("at least one order is required")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !req.Method.IsValid() {
		err := shared.NewValidationError("unknown payment method %q", req.Method)
		telemetry.RecordError(span, err)
		return nil, err
	}
	seen := make(map[uuid.UUID]bool, len(req.Legs))
	for _, l := range req.Legs {
		if seen[l.OrderID] {
			err := shared.NewValidationError("order %s appears twice", l.OrderID)
			telemetry.RecordError(span, err)
			return nil, err
		}
		seen[l.OrderID] = true
	}

	result := &BatchResult{BatchID: uuid.New()}
	for _, l := range req.Legs {
		result.add(s.payLeg(ctx, l, req.Method, req.Payer, result.BatchID))
	}

	s.logBatch(result, "multi", "")
	return result, nil
}

func (s *Processor) payLeg(ctx context.Context, l MultiOrderLeg, method payment.Method, payer string, batchID uuid.UUID) LegResult {
	leg := LegResult{OrderID: l.OrderID}

	o, err := s.loadPayable(ctx, l.OrderID)
	if err != nil {
		leg.Outcome = LegFailed
		leg.Err = err
		if shared.IsCode(err, shared.CodeAlreadyPaid) {
			leg.Outcome = LegSkipped
			leg.Err = nil
		}
		return leg
	}
	leg.OrderNumber = o.Number
	leg.Remaining = o.Remaining()

	selections := l.Selections
	amount := o.Remaining()
	if len(selections) == 0 {
		selections = o.OutstandingSelections()
	} else {
		amount, err = s.priceSelection(o, selections, nil)
		if err != nil {
			leg.Outcome = LegFailed
			leg.Err = err
			return leg
		}
	}

	p, err := s.settle(ctx, o, payment.ModeMulti, amount, selections, method, payer, &batchID)
	return s.legFromSettle(o, leg, p, err)
}

func (s *Processor) legFromSettle(o *order.Order, leg LegResult, p *payment.Payment, err error) LegResult {
	if err != nil {
		leg.Outcome = LegFailed
		leg.Err = err
		return leg
	}
	leg.Outcome = LegSucceeded
	leg.Payment = p
	leg.Remaining = o.Remaining()
	return leg
}

func (s *Processor) logBatch(r *BatchResult, kind, key string) {
	fields := []zap.Field{
		zap.String("batch_id", r.BatchID.String()),
		zap.String("kind", kind),
		zap.Int("legs", len(r.Legs)),
		zap.String("total_paid", r.TotalPaid.String()),
		zap.String("rimanente", r.RimanenteComplessivo.String()),
	}
	if key != "" {
		fields = append(fields, zap.String("table", key))
	}
	failed := r.Failed()
	if len(failed) == 0 {
		s.logger.Info("Batch payment finished", fields...)
		return
	}
	for _, l := range failed {
		fields = append(fields, zap.Stringer("failed_leg", l))
	}
	s.logger.Warn("Batch payment finished with failed legs", fields...)
}
