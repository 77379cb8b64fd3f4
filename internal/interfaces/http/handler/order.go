package handler

import (
	"context"

	"github.com/cassa/backend/internal/application/ordering"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderService is the order intake and floor view used by the API
type OrderService interface {
	RegisterOrder(ctx context.Context, req ordering.RegisterOrderRequest) (*order.Order, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (*order.Order, error)
	CloseOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	ListOpenOrders(ctx context.Context) ([]*order.Order, error)
	ListTableGroups(ctx context.Context) ([]order.TableGroup, error)
	GetTableGroup(ctx context.Context, key string) (*order.TableGroup, error)
}

// OrderHandler handles order and table endpoints
type OrderHandler struct {
	BaseHandler
	orders OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Register handles POST /orders
func (h *OrderHandler) Register(c *gin.Context) {
	var req RegisterOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	customerID, err := parseOptionalUUID("customer_id", req.CustomerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	lines := make([]order.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		price, err := parseMoney("unit_price", l.UnitPrice)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		lines = append(lines, order.LineInput{
			ProductName: l.ProductName,
			UnitPrice:   price,
			Quantity:    l.Quantity,
		})
	}

	o, err := h.orders.RegisterOrder(c.Request.Context(), ordering.RegisterOrderRequest{
		Number:       req.Number,
		TableRef:     req.Table,
		CustomerID:   customerID,
		CustomerName: req.CustomerName,
		Waiter:       req.Waiter,
		Lines:        lines,
		Delivered:    req.Delivered,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toOrderResponse(o))
}

// Deliver handles POST /orders/:id/deliver
func (h *OrderHandler) Deliver(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.MarkDelivered(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(o))
}

// Close handles POST /orders/:id/close
func (h *OrderHandler) Close(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.CloseOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(o))
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(o))
}

// ListOpen handles GET /orders
func (h *OrderHandler) ListOpen(c *gin.Context) {
	orders, err := h.orders.ListOpenOrders(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponses(orders))
}

// ListTables handles GET /tables
func (h *OrderHandler) ListTables(c *gin.Context) {
	groups, err := h.orders.ListTableGroups(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]TableGroupResponse, 0, len(groups))
	for i := range groups {
		out = append(out, toTableGroupResponse(&groups[i]))
	}
	h.Success(c, out)
}

// GetTable handles GET /tables/:key
func (h *OrderHandler) GetTable(c *gin.Context) {
	g, err := h.orders.GetTableGroup(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, TableDetailResponse{
		TableGroupResponse: toTableGroupResponse(g),
		Orders:             toOrderResponses(g.Orders),
	})
}
