package handler

import (
	"context"

	paymentapp "github.com/cassa/backend/internal/application/payment"
	tabapp "github.com/cassa/backend/internal/application/tab"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentService is the part of the payment processor the API exposes
type PaymentService interface {
	PayOrder(ctx context.Context, req paymentapp.PayOrderRequest) (*payment.Payment, error)
	PayPartial(ctx context.Context, req paymentapp.PayPartialRequest) (*payment.Payment, error)
	PayTable(ctx context.Context, req paymentapp.PayTableRequest) (*paymentapp.BatchResult, error)
	PayMultiOrder(ctx context.Context, req paymentapp.PayMultiOrderRequest) (*paymentapp.BatchResult, error)
	CancelPayment(ctx context.Context, orderID uuid.UUID, reason string) (*payment.Payment, error)
	CancelPaymentLines(ctx context.Context, req paymentapp.CancelPaymentLinesRequest) (*payment.Payment, error)
	ListOrderPayments(ctx context.Context, orderID uuid.UUID) ([]*payment.Payment, error)
}

// PaymentTracker marks an order paid in the local view before the payment
// commits and refreshes the view when it fails
type PaymentTracker interface {
	TrackPayment(ctx context.Context, orderID uuid.UUID, pay func(ctx context.Context) error) error
}

// TabChargeReverser undoes the tab charge of a cancelled tab payment.
// *tabapp.Service implements it.
type TabChargeReverser interface {
	ReverseChargeForPayment(ctx context.Context, paymentID uuid.UUID) (*tabapp.ChargeReversal, error)
}

// PaymentHandler handles payment API endpoints
type PaymentHandler struct {
	BaseHandler
	payments PaymentService
	tracker  PaymentTracker
	charges  TabChargeReverser
}

// PaymentHandlerOption configures a PaymentHandler
type PaymentHandlerOption func(*PaymentHandler)

// WithTabCharges runs the tab reversal step after cancelling a tab payment
func WithTabCharges(r TabChargeReverser) PaymentHandlerOption {
	return func(h *PaymentHandler) { h.charges = r }
}

// NewPaymentHandler creates a new PaymentHandler. tracker may be nil.
func NewPaymentHandler(payments PaymentService, tracker PaymentTracker, opts ...PaymentHandlerOption) *PaymentHandler {
	h := &PaymentHandler{payments: payments, tracker: tracker}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PayOrder handles POST /payments/order
func (h *PaymentHandler) PayOrder(c *gin.Context) {
	var req PayOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		h.BadRequest(c, "order_id must be a UUID")
		return
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	appReq := paymentapp.PayOrderRequest{
		OrderID: orderID,
		Amount:  amount,
		Method:  payment.Method(req.Method),
		Payer:   req.Payer,
	}

	var p *payment.Payment
	pay := func(ctx context.Context) error {
		var err error
		p, err = h.payments.PayOrder(ctx, appReq)
		return err
	}
	if h.tracker != nil {
		err = h.tracker.TrackPayment(c.Request.Context(), orderID, pay)
	} else {
		err = pay(c.Request.Context())
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toPaymentResponse(p))
}

// PayPartial handles POST /payments/partial
func (h *PaymentHandler) PayPartial(c *gin.Context) {
	var req PayPartialRequest
	if !h.bindJSON(c, &req) {
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		h.BadRequest(c, "order_id must be a UUID")
		return
	}
	selections, err := toSelections(req.Selections)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	amount, err := parseOptionalMoney("amount", req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	p, err := h.payments.PayPartial(c.Request.Context(), paymentapp.PayPartialRequest{
		OrderID:    orderID,
		Selections: selections,
		Method:     payment.Method(req.Method),
		Payer:      req.Payer,
		Amount:     amount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toPaymentResponse(p))
}

// PayTable handles POST /payments/table. Legs commit one by one, so the
// response is 200 with per-leg outcomes even when some legs failed.
func (h *PaymentHandler) PayTable(c *gin.Context) {
	var req PayTableRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.payments.PayTable(c.Request.Context(), paymentapp.PayTableRequest{
		TableKey: req.Table,
		Method:   payment.Method(req.Method),
		Payer:    req.Payer,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toBatchResponse(result))
}

// PayMulti handles POST /payments/multi
func (h *PaymentHandler) PayMulti(c *gin.Context) {
	var req PayMultiRequest
	if !h.bindJSON(c, &req) {
		return
	}

	legs := make([]paymentapp.MultiOrderLeg, 0, len(req.Legs))
	for _, l := range req.Legs {
		orderID, err := uuid.Parse(l.OrderID)
		if err != nil {
			h.BadRequest(c, "order_id must be a UUID")
			return
		}
		sel, err := toSelections(l.Selections)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		if len(sel) == 0 {
			sel = nil
		}
		legs = append(legs, paymentapp.MultiOrderLeg{OrderID: orderID, Selections: sel})
	}

	result, err := h.payments.PayMultiOrder(c.Request.Context(), paymentapp.PayMultiOrderRequest{
		Legs:   legs,
		Method: payment.Method(req.Method),
		Payer:  req.Payer,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toBatchResponse(result))
}

// CancelPayment handles POST /orders/:id/cancel-payment
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req CancelPaymentRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}

	p, err := h.payments.CancelPayment(c.Request.Context(), orderID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, h.reverseTabCharge(c.Request.Context(), p))
}

// CancelLines handles POST /payments/:id/cancel-lines
func (h *PaymentHandler) CancelLines(c *gin.Context) {
	paymentID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req CancelLinesRequest
	if !h.bindJSON(c, &req) {
		return
	}
	selections, err := toSelections(req.Selections)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	p, err := h.payments.CancelPaymentLines(c.Request.Context(), paymentapp.CancelPaymentLinesRequest{
		PaymentID:  paymentID,
		Selections: selections,
		Reason:     req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, h.reverseTabCharge(c.Request.Context(), p))
}

// reverseTabCharge is the second step of cancelling a tab payment. The
// cancellation is already committed, so a failure here is reported in the
// response, like a failed pay-for-others leg, instead of failing the call.
func (h *PaymentHandler) reverseTabCharge(ctx context.Context, p *payment.Payment) CancelPaymentResponse {
	resp := CancelPaymentResponse{PaymentResponse: toPaymentResponse(p)}
	if h.charges == nil || p.Method != payment.MethodTab {
		return resp
	}
	rev, err := h.charges.ReverseChargeForPayment(ctx, p.ID)
	resp.TabReversal = toChargeReversalResponse(rev)
	if err != nil {
		resp.FailedStep = string(tabapp.StepReversal)
		resp.Error = toLegError(err)
	}
	return resp
}

// ListOrderPayments handles GET /orders/:id/payments
func (h *PaymentHandler) ListOrderPayments(c *gin.Context) {
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	payments, err := h.payments.ListOrderPayments(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPaymentResponses(payments))
}
