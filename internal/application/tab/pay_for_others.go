package tab

import (
	"context"
	"errors"
	"fmt"

	paymentapp "github.com/cassa/backend/internal/application/payment"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/domain/tab"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderPayer settles a whole order. *paymentapp.Processor implements it.
type OrderPayer interface {
	PayOrder(ctx context.Context, req paymentapp.PayOrderRequest) (*payment.Payment, error)
}

// ChargeStep names the step of a pay-for-others leg that failed
type ChargeStep string

const (
	StepNone     ChargeStep = ""
	StepPayment  ChargeStep = "payment"
	StepMovement ChargeStep = "movement"
	// StepReversal is the tab side of a cancelled tab payment; retry it
	// with ReverseChargeForPayment
	StepReversal ChargeStep = "tab_reversal"
)

// ChargeLeg is the outcome for one order charged onto a tab
type ChargeLeg struct {
	OrderID  uuid.UUID
	Payment  *payment.Payment
	Movement *tab.Movement
	Skipped  bool
	// FailedStep is StepMovement when the payment committed but the tab
	// charge did not; retry it with RecordChargeForPayment.
	FailedStep ChargeStep
	Err        error
}

// PayForOthersResult reports every leg of a pay-for-others call
type PayForOthersResult struct {
	AccountID string
	Legs      []ChargeLeg
	Charged   valueobject.Money
}

// Failed returns the legs that did not complete both steps
func (r *PayForOthersResult) Failed() []ChargeLeg {
	failed := make([]ChargeLeg, 0)
	for _, l := range r.Legs {
		if l.Err != nil {
			failed = append(failed, l)
		}
	}
	return failed
}

// PayForOthersRequest charges several orders onto one account
type PayForOthersRequest struct {
	AccountID string
	Owner     tab.Owner
	OrderIDs  []uuid.UUID
}

// PayForOthers runs two separate steps per order: pay the order with the
// tab method, then record the ORDINE movement for that payment. Each step
// commits on its own, so a failure names the step that failed.
func (s *Service) PayForOthers(ctx context.Context, req PayForOthersRequest) (*PayForOthersResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tab", "pay_for_others")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, req.AccountID,
		"orders", len(req.OrderIDs),
	)

	if s.orders == nil || s.payer == nil {
		err := shared.NewValidationError("pay for others is not configured")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(req.OrderIDs) == 0 {
		err := shared.NewValidationError("at least one order is required")
		telemetry.RecordError(span, err)
		return nil, err
	}
	seen := make(map[uuid.UUID]bool, len(req.OrderIDs))
	for _, id := range req.OrderIDs {
		if seen[id] {
			err := shared.NewValidationError("order %s listed twice", id)
			telemetry.RecordError(span, err)
			return nil, err
		}
		seen[id] = true
	}

	result := &PayForOthersResult{AccountID: req.AccountID}
	for _, id := range req.OrderIDs {
		leg := s.chargeOrder(ctx, req, id)
		if leg.Movement != nil {
			result.Charged = result.Charged.Add(leg.Movement.Amount)
		}
		result.Legs = append(result.Legs, leg)
	}

	failed := result.Failed()
	s.logger.Info("Pay for others finished",
		zap.String("account_id", req.AccountID),
		zap.Int("orders", len(req.OrderIDs)),
		zap.Int("failed", len(failed)),
		zap.String("charged", result.Charged.String()),
	)
	if len(failed) > 0 {
		telemetry.AddEvent(span, "legs_failed", "count", len(failed))
	}
	return result, nil
}

func (s *Service) chargeOrder(ctx context.Context, req PayForOthersRequest, orderID uuid.UUID) ChargeLeg {
	leg := ChargeLeg{OrderID: orderID}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		leg.FailedStep, leg.Err = StepPayment, storageError("failed to load order", err)
		return leg
	}
	if !o.Remaining().IsPositive() {
		leg.Skipped = true
		return leg
	}

	p, err := s.payer.PayOrder(ctx, paymentapp.PayOrderRequest{
		OrderID: o.ID,
		Amount:  o.Remaining(),
		Method:  payment.MethodTab,
		Payer:   payerName(req),
	})
	if err != nil {
		leg.FailedStep, leg.Err = StepPayment, err
		return leg
	}
	leg.Payment = p

	m, err := s.RecordChargeForPayment(ctx, req.AccountID, req.Owner, p.ID)
	if err != nil {
		s.logger.Warn("Order paid on tab but movement not recorded",
			zap.String("account_id", req.AccountID),
			zap.String("payment_id", p.ID.String()),
			zap.Error(err),
		)
		leg.FailedStep, leg.Err = StepMovement, fmt.Errorf("payment %s committed, tab charge failed: %w", p.ID, err)
		return leg
	}
	leg.Movement = m
	return leg
}

func payerName(req PayForOthersRequest) string {
	if req.Owner.Name != "" {
		return req.Owner.Name
	}
	return req.AccountID
}

// ChargeReversal is the tab side of a cancelled or partially cancelled tab
// payment
type ChargeReversal struct {
	AccountID string
	// Reversals are the STORNO movements recorded by this call
	Reversals []*tab.Movement
	// Recharge is the ORDINE for what a partially cancelled payment still
	// holds, nil when nothing is left
	Recharge *tab.Movement
}

// Changed reports whether the call recorded any movement
func (r *ChargeReversal) Changed() bool {
	return r != nil && (len(r.Reversals) > 0 || r.Recharge != nil)
}

// ReverseChargeForPayment brings the tab charge of a payment back in line
// with the payment after a cancellation. The charge of a cancelled payment
// is reversed with a STORNO; a partially cancelled payment gets a new ORDINE
// for its remaining amount before the old charge is reversed. A payment that
// was never charged onto a tab returns nil. Calling it again once the charge
// matches records nothing.
func (s *Service) ReverseChargeForPayment(ctx context.Context, paymentID uuid.UUID) (*ChargeReversal, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tab", "reverse_charge")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, paymentID.String())

	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		err = storageError("failed to load payment", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if p.Method != payment.MethodTab {
		return nil, nil
	}

	located, err := s.accounts.FindMovementByPayment(ctx, paymentID)
	if errors.Is(err, shared.ErrNotFound) {
		telemetry.AddEvent(span, "never_charged")
		return nil, nil
	}
	if err != nil {
		err = storageError("failed to look up charge", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	a, err := s.accounts.FindByID(ctx, located.AccountID)
	if err != nil {
		err = storageError("failed to load account", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrAccountID, a.ID)

	target := valueobject.Zero
	if p.Status.IsSettled() {
		target = p.Amount
	}

	result := &ChargeReversal{AccountID: a.ID}
	charges := a.ChargesForPayment(p.ID)
	keep := -1
	for i, m := range charges {
		if target.IsPositive() && m.Amount.Equals(target) {
			keep = i
			break
		}
	}
	if keep < 0 && target.IsPositive() {
		m, err := s.RecordMovement(ctx, RecordMovementRequest{
			AccountID: a.ID,
			Type:      tab.MovementOrder,
			Amount:    target,
			PaymentID: &p.ID,
			Note:      "ordine " + p.OrderID.String() + " (parziale)",
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		result.Recharge = m
	}

	for i, m := range charges {
		if i == keep {
			continue
		}
		reversesID := m.ID
		storno, err := s.RecordMovement(ctx, RecordMovementRequest{
			AccountID:  a.ID,
			Type:       tab.MovementReversal,
			ReversesID: &reversesID,
			PaymentID:  &p.ID,
			Note:       "storno pagamento " + p.ID.String(),
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return result, err
		}
		result.Reversals = append(result.Reversals, storno)
	}

	if result.Changed() {
		s.logger.Info("Tab charge realigned with cancelled payment",
			zap.String("account_id", a.ID),
			zap.String("payment_id", p.ID.String()),
			zap.String("payment_status", string(p.Status)),
			zap.Int("reversals", len(result.Reversals)),
			zap.Bool("recharged", result.Recharge != nil),
		)
	}
	return result, nil
}
