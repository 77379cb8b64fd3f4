package handler

import (
	"time"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
)

// RegisterOrderRequest is an order as sent by the order source
type RegisterOrderRequest struct {
	Number       string             `json:"number" binding:"required,max=50"`
	Table        string             `json:"table" binding:"max=50"`
	CustomerID   string             `json:"customer_id" binding:"omitempty,uuid"`
	CustomerName string             `json:"customer_name" binding:"max=200"`
	Waiter       string             `json:"waiter" binding:"max=100"`
	Delivered    bool               `json:"delivered"`
	Lines        []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// OrderLineRequest is one product line of a new order
type OrderLineRequest struct {
	ProductName string `json:"product_name" binding:"required,max=200"`
	UnitPrice   string `json:"unit_price" binding:"required,money"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
}

// SelectionRequest picks a quantity of one order line
type SelectionRequest struct {
	LineID   string `json:"line_id" binding:"required,uuid"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// LineResponse is an order line with its payment progress
type LineResponse struct {
	ID                string            `json:"id"`
	ProductName       string            `json:"product_name"`
	UnitPrice         valueobject.Money `json:"unit_price"`
	Quantity          int               `json:"quantity"`
	PaidQuantity      int               `json:"paid_quantity"`
	RemainingQuantity int               `json:"remaining_quantity"`
	PaidBy            []string          `json:"paid_by"`
	Total             valueobject.Money `json:"total"`
	Outstanding       valueobject.Money `json:"outstanding"`
}

// DeferralResponse is an amount moved from the order to a debt
type DeferralResponse struct {
	DebtID     string            `json:"debt_id"`
	Amount     valueobject.Money `json:"amount"`
	DeferredAt time.Time         `json:"deferred_at"`
}

// OrderResponse is an order with derived totals
type OrderResponse struct {
	ID             string             `json:"id"`
	Number         string             `json:"number"`
	Table          string             `json:"table"`
	TableKey       string             `json:"table_key"`
	TableKind      string             `json:"table_kind"`
	CustomerID     *string            `json:"customer_id,omitempty"`
	CustomerName   string             `json:"customer_name,omitempty"`
	Waiter         string             `json:"waiter,omitempty"`
	Lines          []LineResponse     `json:"lines"`
	Deferrals      []DeferralResponse `json:"deferrals,omitempty"`
	Total          valueobject.Money  `json:"total"`
	TotalPaid      valueobject.Money  `json:"total_paid"`
	Deferred       valueobject.Money  `json:"deferred"`
	Remaining      valueobject.Money  `json:"remaining"`
	StatoPagamento string             `json:"stato_pagamento"`
	OpenedAt       time.Time          `json:"opened_at"`
	DeliveredAt    *time.Time         `json:"delivered_at,omitempty"`
	ClosedAt       *time.Time         `json:"closed_at,omitempty"`
	Version        int                `json:"version"`
}

// TableGroupResponse is one table of the aggregated floor view
type TableGroupResponse struct {
	Key              string            `json:"key"`
	Kind             string            `json:"kind"`
	OrderIDs         []string          `json:"order_ids"`
	OrderCount       int               `json:"order_count"`
	Total            valueobject.Money `json:"total"`
	Paid             valueobject.Money `json:"paid"`
	Remaining        valueobject.Money `json:"remaining"`
	CustomerNames    []string          `json:"customer_names"`
	EarliestOpenedAt time.Time         `json:"earliest_opened_at"`
	StatoPagamento   string            `json:"stato_pagamento"`
}

// TableDetailResponse is a table group with its orders expanded
type TableDetailResponse struct {
	TableGroupResponse
	Orders []OrderResponse `json:"orders"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	key := o.TableKey()
	resp := OrderResponse{
		ID:             o.ID.String(),
		Number:         o.Number,
		Table:          o.TableRef,
		TableKey:       key.String(),
		TableKind:      string(key.Kind),
		CustomerName:   o.CustomerName,
		Waiter:         o.Waiter,
		Lines:          make([]LineResponse, 0, len(o.Lines)),
		Total:          o.Total(),
		TotalPaid:      o.TotalPaid(),
		Deferred:       o.Deferred(),
		Remaining:      o.Remaining(),
		StatoPagamento: string(o.PaymentStatus()),
		OpenedAt:       o.OpenedAt,
		DeliveredAt:    o.DeliveredAt,
		ClosedAt:       o.ClosedAt,
		Version:        o.Version,
	}
	if o.CustomerID != nil {
		id := o.CustomerID.String()
		resp.CustomerID = &id
	}
	for i := range o.Lines {
		l := &o.Lines[i]
		paidBy := l.PaidBy()
		if paidBy == nil {
			paidBy = []string{}
		}
		resp.Lines = append(resp.Lines, LineResponse{
			ID:                l.ID.String(),
			ProductName:       l.ProductName,
			UnitPrice:         l.UnitPrice,
			Quantity:          l.Quantity,
			PaidQuantity:      l.PaidQuantity(),
			RemainingQuantity: l.RemainingQuantity(),
			PaidBy:            paidBy,
			Total:             l.Total(),
			Outstanding:       l.Outstanding(),
		})
	}
	for _, d := range o.Deferrals {
		resp.Deferrals = append(resp.Deferrals, DeferralResponse{
			DebtID:     d.DebtID.String(),
			Amount:     d.Amount,
			DeferredAt: d.DeferredAt,
		})
	}
	return resp
}

func toOrderResponses(orders []*order.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func toTableGroupResponse(g *order.TableGroup) TableGroupResponse {
	resp := TableGroupResponse{
		Key:              g.Key,
		Kind:             string(g.Kind),
		OrderIDs:         make([]string, 0, len(g.Orders)),
		OrderCount:       len(g.Orders),
		Total:            g.Total,
		Paid:             g.Paid,
		Remaining:        g.Remaining,
		CustomerNames:    g.CustomerNames,
		EarliestOpenedAt: g.EarliestOpenedAt,
		StatoPagamento:   string(g.Status),
	}
	if resp.CustomerNames == nil {
		resp.CustomerNames = []string{}
	}
	for _, o := range g.Orders {
		resp.OrderIDs = append(resp.OrderIDs, o.ID.String())
	}
	return resp
}
