package handler

import (
	"errors"
	"time"

	paymentapp "github.com/cassa/backend/internal/application/payment"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/interfaces/http/dto"
	"github.com/google/uuid"
)

// PayOrderRequest settles an order's whole remainder
type PayOrderRequest struct {
	OrderID string `json:"order_id" binding:"required,uuid"`
	Amount  string `json:"amount" binding:"required,money"`
	Method  string `json:"method" binding:"required,payment_method"`
	Payer   string `json:"payer" binding:"max=100"`
}

// PayPartialRequest pays selected line quantities of one order
type PayPartialRequest struct {
	OrderID    string             `json:"order_id" binding:"required,uuid"`
	Selections []SelectionRequest `json:"selections" binding:"required,min=1,dive"`
	Amount     string             `json:"amount" binding:"omitempty,money"`
	Method     string             `json:"method" binding:"required,payment_method"`
	Payer      string             `json:"payer" binding:"max=100"`
}

// PayTableRequest pays every open order of a table
type PayTableRequest struct {
	Table  string `json:"table" binding:"required,max=50"`
	Method string `json:"method" binding:"required,payment_method"`
	Payer  string `json:"payer" binding:"max=100"`
}

// MultiOrderLegRequest is one order of a multi-order payment. No
// selections means the whole remainder of that order.
type MultiOrderLegRequest struct {
	OrderID    string             `json:"order_id" binding:"required,uuid"`
	Selections []SelectionRequest `json:"selections" binding:"omitempty,dive"`
}

// PayMultiRequest pays several orders in one cashier action
type PayMultiRequest struct {
	Legs   []MultiOrderLegRequest `json:"legs" binding:"required,min=1,dive"`
	Method string                 `json:"method" binding:"required,payment_method"`
	Payer  string                 `json:"payer" binding:"max=100"`
}

// CancelPaymentRequest reverses the latest payment of an order
type CancelPaymentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// CancelLinesRequest reverses part of one payment
type CancelLinesRequest struct {
	Selections []SelectionRequest `json:"selections" binding:"required,min=1,dive"`
	Reason     string             `json:"reason" binding:"max=500"`
}

// PaymentResponse is a payment record
type PaymentResponse struct {
	ID            string            `json:"id"`
	OrderID       string            `json:"order_id"`
	BatchID       *string           `json:"batch_id,omitempty"`
	Mode          string            `json:"mode"`
	Amount        valueobject.Money `json:"amount"`
	Method        string            `json:"method"`
	Payer         string            `json:"payer,omitempty"`
	Selections    []order.Selection `json:"selections"`
	Status        string            `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CancelReason  string            `json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Version       int               `json:"version"`
}

// CancelPaymentResponse is the cancelled payment plus, for tab payments,
// the outcome of the tab reversal step
type CancelPaymentResponse struct {
	PaymentResponse
	TabReversal *ChargeReversalResponse `json:"tab_reversal,omitempty"`
	FailedStep  string                  `json:"failed_step,omitempty"`
	Error       *LegError               `json:"error,omitempty"`
}

// LegResponse reports one order of a table or multi-order payment
type LegResponse struct {
	OrderID     string            `json:"order_id"`
	OrderNumber string            `json:"order_number,omitempty"`
	Outcome     string            `json:"outcome"`
	Payment     *PaymentResponse  `json:"payment,omitempty"`
	Remaining   valueobject.Money `json:"remaining"`
	Error       *LegError         `json:"error,omitempty"`
}

// LegError is the failure of one leg
type LegError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResponse is the outcome of a table or multi-order payment
type BatchResponse struct {
	BatchID              string            `json:"batch_id"`
	Legs                 []LegResponse     `json:"legs"`
	TotalPaid            valueobject.Money `json:"total_paid"`
	RimanenteComplessivo valueobject.Money `json:"rimanente_complessivo"`
	AllSucceeded         bool              `json:"all_succeeded"`
}

func toSelections(reqs []SelectionRequest) ([]order.Selection, error) {
	out := make([]order.Selection, 0, len(reqs))
	for _, r := range reqs {
		id, err := uuid.Parse(r.LineID)
		if err != nil {
			return nil, shared.NewValidationError("line_id must be a UUID")
		}
		out = append(out, order.Selection{LineID: id, Quantity: r.Quantity})
	}
	return out, nil
}

func toPaymentResponse(p *payment.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID.String(),
		OrderID:       p.OrderID.String(),
		Mode:          string(p.Mode),
		Amount:        p.Amount,
		Method:        string(p.Method),
		Payer:         p.Payer,
		Selections:    p.Selections,
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		CancelReason:  p.CancelReason,
		CancelledAt:   p.CancelledAt,
		CreatedAt:     p.CreatedAt,
		Version:       p.Version,
	}
	if resp.Selections == nil {
		resp.Selections = []order.Selection{}
	}
	if p.BatchID != nil {
		id := p.BatchID.String()
		resp.BatchID = &id
	}
	return resp
}

func toPaymentResponses(payments []*payment.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	return out
}

func toBatchResponse(r *paymentapp.BatchResult) BatchResponse {
	resp := BatchResponse{
		BatchID:              r.BatchID.String(),
		Legs:                 make([]LegResponse, 0, len(r.Legs)),
		TotalPaid:            r.TotalPaid,
		RimanenteComplessivo: r.RimanenteComplessivo,
		AllSucceeded:         r.AllSucceeded(),
	}
	for _, leg := range r.Legs {
		lr := LegResponse{
			OrderID:     leg.OrderID.String(),
			OrderNumber: leg.OrderNumber,
			Outcome:     string(leg.Outcome),
			Remaining:   leg.Remaining,
		}
		if leg.Payment != nil {
			p := toPaymentResponse(leg.Payment)
			lr.Payment = &p
		}
		if leg.Err != nil {
			lr.Error = toLegError(leg.Err)
		}
		resp.Legs = append(resp.Legs, lr)
	}
	return resp
}

func toLegError(err error) *LegError {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return &LegError{Code: de.Code, Message: de.Message}
	}
	return &LegError{Code: dto.ErrCodeInternal, Message: "An unexpected error occurred"}
}
