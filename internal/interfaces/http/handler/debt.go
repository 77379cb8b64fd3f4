package handler

import (
	"context"
	"strconv"

	debtapp "github.com/cassa/backend/internal/application/debt"
	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DebtService is the debt account manager as used by the API
type DebtService interface {
	CreateDebt(ctx context.Context, req debtapp.CreateDebtRequest) (*debt.Debt, error)
	CreateDirectDebt(ctx context.Context, req debtapp.CreateDirectDebtRequest) (*debt.Debt, error)
	PayDebt(ctx context.Context, req debtapp.PayDebtRequest) (*debt.Debt, error)
	GetDebt(ctx context.Context, id uuid.UUID) (*debt.Debt, error)
	ListCustomerDebts(ctx context.Context, customerID uuid.UUID, includeSettled bool) ([]*debt.Debt, error)
}

// DebtHandler handles debt endpoints
type DebtHandler struct {
	BaseHandler
	debts DebtService
}

// NewDebtHandler creates a new DebtHandler
func NewDebtHandler(debts DebtService) *DebtHandler {
	return &DebtHandler{debts: debts}
}

// Create handles POST /debts
func (h *DebtHandler) Create(c *gin.Context) {
	var req CreateDebtRequest
	if !h.bindJSON(c, &req) {
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		h.BadRequest(c, "order_id must be a UUID")
		return
	}
	customerID, err := parseOptionalUUID("customer_id", req.CustomerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	d, err := h.debts.CreateDebt(c.Request.Context(), debtapp.CreateDebtRequest{
		CustomerID:   customerID,
		CustomerName: req.CustomerName,
		OrderID:      orderID,
		Amount:       amount,
		Note:         req.Note,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toDebtResponse(d))
}

// CreateDirect handles POST /debts/direct
func (h *DebtHandler) CreateDirect(c *gin.Context) {
	var req CreateDirectDebtRequest
	if !h.bindJSON(c, &req) {
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		h.BadRequest(c, "customer_id must be a UUID")
		return
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	d, err := h.debts.CreateDirectDebt(c.Request.Context(), debtapp.CreateDirectDebtRequest{
		CustomerID:   customerID,
		CustomerName: req.CustomerName,
		Amount:       amount,
		Note:         req.Note,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toDebtResponse(d))
}

// Pay handles POST /debts/:id/payments
func (h *DebtHandler) Pay(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req PayDebtRequest
	if !h.bindJSON(c, &req) {
		return
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	d, err := h.debts.PayDebt(c.Request.Context(), debtapp.PayDebtRequest{
		DebtID: id,
		Amount: amount,
		Method: payment.Method(req.Method),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toDebtResponse(d))
}

// Get handles GET /debts/:id
func (h *DebtHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	d, err := h.debts.GetDebt(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toDebtResponse(d))
}

// ListForCustomer handles GET /customers/:id/debts?include_settled=true
func (h *DebtHandler) ListForCustomer(c *gin.Context) {
	customerID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	includeSettled := false
	if raw := c.Query("include_settled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.BadRequest(c, "include_settled must be a boolean")
			return
		}
		includeSettled = v
	}

	debts, err := h.debts.ListCustomerDebts(c.Request.Context(), customerID, includeSettled)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]DebtResponse, 0, len(debts))
	for _, d := range debts {
		out = append(out, toDebtResponse(d))
	}
	h.Success(c, out)
}
