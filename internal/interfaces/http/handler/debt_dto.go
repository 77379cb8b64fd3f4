package handler

import (
	"time"

	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
)

// CreateDebtRequest moves part of an order's remainder onto a debt
type CreateDebtRequest struct {
	OrderID      string `json:"order_id" binding:"required,uuid"`
	CustomerID   string `json:"customer_id" binding:"omitempty,uuid"`
	CustomerName string `json:"customer_name" binding:"max=200"`
	Amount       string `json:"amount" binding:"required,money"`
	Note         string `json:"note" binding:"max=500"`
}

// CreateDirectDebtRequest records a debt not tied to an order
type CreateDirectDebtRequest struct {
	CustomerID   string `json:"customer_id" binding:"required,uuid"`
	CustomerName string `json:"customer_name" binding:"max=200"`
	Amount       string `json:"amount" binding:"required,money"`
	Note         string `json:"note" binding:"max=500"`
}

// PayDebtRequest pays all or part of a debt
type PayDebtRequest struct {
	Amount string `json:"amount" binding:"required,money"`
	Method string `json:"method" binding:"required,payment_method"`
}

// DebtResponse is a debt with its payment history
type DebtResponse struct {
	ID            string             `json:"id"`
	CustomerID    string             `json:"customer_id"`
	CustomerName  string             `json:"customer_name,omitempty"`
	SourceOrderID *string            `json:"source_order_id,omitempty"`
	Amount        valueobject.Money  `json:"amount"`
	Paid          valueobject.Money  `json:"paid"`
	Remaining     valueobject.Money  `json:"remaining"`
	Payments      []debt.DebtPayment `json:"payments"`
	Note          string             `json:"note,omitempty"`
	State         string             `json:"state"`
	SettledAt     *time.Time         `json:"settled_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Version       int                `json:"version"`
}

func toDebtResponse(d *debt.Debt) DebtResponse {
	resp := DebtResponse{
		ID:           d.ID.String(),
		CustomerID:   d.CustomerID.String(),
		CustomerName: d.CustomerName,
		Amount:       d.Amount,
		Paid:         d.PaidAmount(),
		Remaining:    d.Remaining(),
		Payments:     d.Payments,
		Note:         d.Note,
		State:        string(d.State),
		SettledAt:    d.SettledAt,
		CreatedAt:    d.CreatedAt,
		Version:      d.Version,
	}
	if resp.Payments == nil {
		resp.Payments = []debt.DebtPayment{}
	}
	if d.SourceOrderID != nil {
		id := d.SourceOrderID.String()
		resp.SourceOrderID = &id
	}
	return resp
}
