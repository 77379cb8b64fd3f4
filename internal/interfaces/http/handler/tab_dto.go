package handler

import (
	"time"

	tabapp "github.com/cassa/backend/internal/application/tab"
	"github.com/cassa/backend/internal/domain/tab"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
)

// OwnerRequest names who a tab belongs to. Used only when the request
// opens the account.
type OwnerRequest struct {
	Kind string `json:"kind" binding:"omitempty,oneof=table customer"`
	Ref  string `json:"ref" binding:"max=100"`
	Name string `json:"name" binding:"max=200"`
}

func (o OwnerRequest) toDomain() tab.Owner {
	return tab.Owner{Kind: tab.OwnerKind(o.Kind), Ref: o.Ref, Name: o.Name}
}

// RecordMovementRequest appends one movement to a tab
type RecordMovementRequest struct {
	Type       string       `json:"type" binding:"required,movement_type"`
	Amount     string       `json:"amount" binding:"omitempty,money"`
	ReversesID string       `json:"reverses_id" binding:"omitempty,uuid"`
	PaymentID  string       `json:"payment_id" binding:"omitempty,uuid"`
	Note       string       `json:"note" binding:"max=500"`
	Owner      OwnerRequest `json:"owner"`
}

// PayForOthersRequest charges other people's orders onto a tab
type PayForOthersRequest struct {
	Owner    OwnerRequest `json:"owner"`
	OrderIDs []string     `json:"order_ids" binding:"required,min=1,dive,uuid"`
}

// RecordChargeRequest retries the movement step of a tab charge
type RecordChargeRequest struct {
	PaymentID string       `json:"payment_id" binding:"required,uuid"`
	Owner     OwnerRequest `json:"owner"`
}

// MovementResponse is one tab movement
type MovementResponse struct {
	ID         string            `json:"id"`
	AccountID  string            `json:"account_id"`
	Seq        int               `json:"seq"`
	Type       string            `json:"type"`
	Amount     valueobject.Money `json:"amount"`
	ReversesID *string           `json:"reverses_id,omitempty"`
	PaymentID  *string           `json:"payment_id,omitempty"`
	Note       string            `json:"note,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// AccountResponse is a tab with its folded balance and history
type AccountResponse struct {
	ID             string             `json:"id"`
	Owner          tab.Owner          `json:"owner"`
	Status         string             `json:"status"`
	Saldo          valueobject.Money  `json:"saldo"`
	TotalOrdini    valueobject.Money  `json:"total_ordini"`
	TotalPagamenti valueobject.Money  `json:"total_pagamenti"`
	TotalStorni    valueobject.Money  `json:"total_storni"`
	OpenedAt       time.Time          `json:"opened_at"`
	Movements      []MovementResponse `json:"movements"`
}

// AccountSummaryResponse is one line of the tab summary
type AccountSummaryResponse struct {
	AccountID      string            `json:"account_id"`
	Owner          tab.Owner         `json:"owner"`
	Status         string            `json:"status"`
	Saldo          valueobject.Money `json:"saldo"`
	TotalOrdini    valueobject.Money `json:"total_ordini"`
	TotalPagamenti valueobject.Money `json:"total_pagamenti"`
	TotalStorni    valueobject.Money `json:"total_storni"`
	MovementCount  int               `json:"movement_count"`
	OpenedAt       time.Time         `json:"opened_at"`
	LastMovementAt *time.Time        `json:"last_movement_at,omitempty"`
}

// TabSummaryResponse lists the open tabs
type TabSummaryResponse struct {
	Accounts         []AccountSummaryResponse `json:"accounts"`
	TotalOutstanding valueobject.Money        `json:"total_outstanding"`
	OpenAccounts     int                      `json:"open_accounts"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

// ChargeLegResponse reports one order of a pay-for-others call
type ChargeLegResponse struct {
	OrderID    string            `json:"order_id"`
	Skipped    bool              `json:"skipped,omitempty"`
	Payment    *PaymentResponse  `json:"payment,omitempty"`
	Movement   *MovementResponse `json:"movement,omitempty"`
	FailedStep string            `json:"failed_step,omitempty"`
	Error      *LegError         `json:"error,omitempty"`
}

// PayForOthersResponse is the outcome of a pay-for-others call
type PayForOthersResponse struct {
	AccountID string              `json:"account_id"`
	Legs      []ChargeLegResponse `json:"legs"`
	Charged   valueobject.Money   `json:"charged"`
}

// ChargeReversalResponse is the tab side of a cancelled tab payment
type ChargeReversalResponse struct {
	AccountID string             `json:"account_id"`
	Reversals []MovementResponse `json:"reversals"`
	Recharge  *MovementResponse  `json:"recharge,omitempty"`
}

func toChargeReversalResponse(r *tabapp.ChargeReversal) *ChargeReversalResponse {
	if r == nil {
		return nil
	}
	resp := &ChargeReversalResponse{
		AccountID: r.AccountID,
		Reversals: make([]MovementResponse, 0, len(r.Reversals)),
	}
	for _, m := range r.Reversals {
		resp.Reversals = append(resp.Reversals, toMovementResponse(m))
	}
	if r.Recharge != nil {
		m := toMovementResponse(r.Recharge)
		resp.Recharge = &m
	}
	return resp
}

func toMovementResponse(m *tab.Movement) MovementResponse {
	resp := MovementResponse{
		ID:        m.ID.String(),
		AccountID: m.AccountID,
		Seq:       m.Seq,
		Type:      string(m.Type),
		Amount:    m.Amount,
		Note:      m.Note,
		CreatedAt: m.CreatedAt,
	}
	if m.ReversesID != nil {
		id := m.ReversesID.String()
		resp.ReversesID = &id
	}
	if m.PaymentID != nil {
		id := m.PaymentID.String()
		resp.PaymentID = &id
	}
	return resp
}

func toAccountResponse(a *tab.ScalarAccount) AccountResponse {
	bal := a.Fold()
	resp := AccountResponse{
		ID:             a.ID,
		Owner:          a.Owner,
		Status:         string(a.Status()),
		Saldo:          bal.Saldo,
		TotalOrdini:    bal.Ordini,
		TotalPagamenti: bal.Pagamenti,
		TotalStorni:    bal.Storni,
		OpenedAt:       a.OpenedAt,
		Movements:      make([]MovementResponse, 0, len(a.Movements)),
	}
	for i := range a.Movements {
		resp.Movements = append(resp.Movements, toMovementResponse(&a.Movements[i]))
	}
	return resp
}

func toTabSummaryResponse(s *tab.TabSummary) TabSummaryResponse {
	resp := TabSummaryResponse{
		Accounts:         make([]AccountSummaryResponse, 0, len(s.Accounts)),
		TotalOutstanding: s.TotalOutstanding,
		OpenAccounts:     s.OpenAccounts,
		GeneratedAt:      s.GeneratedAt,
	}
	for _, a := range s.Accounts {
		resp.Accounts = append(resp.Accounts, AccountSummaryResponse{
			AccountID:      a.AccountID,
			Owner:          a.Owner,
			Status:         string(a.Status),
			Saldo:          a.Saldo,
			TotalOrdini:    a.TotalOrdini,
			TotalPagamenti: a.TotalPagamenti,
			TotalStorni:    a.TotalStorni,
			MovementCount:  a.MovementCount,
			OpenedAt:       a.OpenedAt,
			LastMovementAt: a.LastMovementAt,
		})
	}
	return resp
}

func toPayForOthersResponse(r *tabapp.PayForOthersResult) PayForOthersResponse {
	resp := PayForOthersResponse{
		AccountID: r.AccountID,
		Legs:      make([]ChargeLegResponse, 0, len(r.Legs)),
		Charged:   r.Charged,
	}
	for _, leg := range r.Legs {
		lr := ChargeLegResponse{
			OrderID:    leg.OrderID.String(),
			Skipped:    leg.Skipped,
			FailedStep: string(leg.FailedStep),
		}
		if leg.Payment != nil {
			p := toPaymentResponse(leg.Payment)
			lr.Payment = &p
		}
		if leg.Movement != nil {
			m := toMovementResponse(leg.Movement)
			lr.Movement = &m
		}
		if leg.Err != nil {
			lr.Error = toLegError(leg.Err)
		}
		resp.Legs = append(resp.Legs, lr)
	}
	return resp
}
