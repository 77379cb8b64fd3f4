package handler

import (
	"context"

	tabapp "github.com/cassa/backend/internal/application/tab"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/domain/tab"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TabService is the running tab ledger as used by the API
type TabService interface {
	RecordMovement(ctx context.Context, req tabapp.RecordMovementRequest) (*tab.Movement, error)
	GetAccount(ctx context.Context, id string) (*tab.ScalarAccount, error)
	GetTabSummary(ctx context.Context) (*tab.TabSummary, error)
	PayForOthers(ctx context.Context, req tabapp.PayForOthersRequest) (*tabapp.PayForOthersResult, error)
	RecordChargeForPayment(ctx context.Context, accountID string, owner tab.Owner, paymentID uuid.UUID) (*tab.Movement, error)
	ReverseChargeForPayment(ctx context.Context, paymentID uuid.UUID) (*tabapp.ChargeReversal, error)
}

// TabHandler handles running tab endpoints
type TabHandler struct {
	BaseHandler
	tabs TabService
}

// NewTabHandler creates a new TabHandler
func NewTabHandler(tabs TabService) *TabHandler {
	return &TabHandler{tabs: tabs}
}

// RecordMovement handles POST /tabs/:id/movements
func (h *TabHandler) RecordMovement(c *gin.Context) {
	var req RecordMovementRequest
	if !h.bindJSON(c, &req) {
		return
	}
	amount := valueobject.Zero
	if req.Amount != "" {
		m, err := parseMoney("amount", req.Amount)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		amount = m
	}
	reversesID, err := parseOptionalUUID("reverses_id", req.ReversesID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	paymentID, err := parseOptionalUUID("payment_id", req.PaymentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	m, err := h.tabs.RecordMovement(c.Request.Context(), tabapp.RecordMovementRequest{
		AccountID:  c.Param("id"),
		Owner:      req.Owner.toDomain(),
		Type:       tab.MovementType(req.Type),
		Amount:     amount,
		ReversesID: reversesID,
		PaymentID:  paymentID,
		Note:       req.Note,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toMovementResponse(m))
}

// Get handles GET /tabs/:id. Closed accounts are returned too.
func (h *TabHandler) Get(c *gin.Context) {
	a, err := h.tabs.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toAccountResponse(a))
}

// Summary handles GET /tabs/summary
func (h *TabHandler) Summary(c *gin.Context) {
	s, err := h.tabs.GetTabSummary(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toTabSummaryResponse(s))
}

// PayForOthers handles POST /tabs/:id/pay-for-others
func (h *TabHandler) PayForOthers(c *gin.Context) {
	var req PayForOthersRequest
	if !h.bindJSON(c, &req) {
		return
	}
	orderIDs := make([]uuid.UUID, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "order_ids must be UUIDs")
			return
		}
		orderIDs = append(orderIDs, id)
	}

	result, err := h.tabs.PayForOthers(c.Request.Context(), tabapp.PayForOthersRequest{
		AccountID: c.Param("id"),
		Owner:     req.Owner.toDomain(),
		OrderIDs:  orderIDs,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPayForOthersResponse(result))
}

// RecordCharge handles POST /tabs/:id/charges, the retry of the movement
// step after a pay-for-others call reported it failed
func (h *TabHandler) RecordCharge(c *gin.Context) {
	var req RecordChargeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		h.BadRequest(c, "payment_id must be a UUID")
		return
	}

	m, err := h.tabs.RecordChargeForPayment(c.Request.Context(), c.Param("id"), req.Owner.toDomain(), paymentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toMovementResponse(m))
}

// ReverseCharge handles POST /tabs/charges/:payment_id/reverse, the retry of
// the tab reversal step after a cancellation reported it failed
func (h *TabHandler) ReverseCharge(c *gin.Context) {
	paymentID, ok := h.uuidParam(c, "payment_id")
	if !ok {
		return
	}
	rev, err := h.tabs.ReverseChargeForPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if rev == nil {
		h.HandleError(c, shared.NewDomainError(shared.CodeNotFound, "payment "+paymentID.String()+" has no tab charge"))
		return
	}
	h.Success(c, toChargeReversalResponse(rev))
}
