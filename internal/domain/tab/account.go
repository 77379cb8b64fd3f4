// Package tab holds scalar accounts: running tabs kept as an append-only
// list of movements. Every balance is a fold over the movements.
package tab

import (
	"strings"
	"time"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// MovementType is the kind of ledger movement
type MovementType string

const (
	// MovementOrder increases what the account owes
	MovementOrder MovementType = "ORDINE"
	// MovementPayment decreases what the account owes
	MovementPayment MovementType = "PAGAMENTO"
	// MovementReversal cancels one earlier ORDINE or PAGAMENTO
	MovementReversal MovementType = "STORNO"
)

// IsValid checks if the movement type is valid
func (t MovementType) IsValid() bool {
	switch t {
	case MovementOrder, MovementPayment, MovementReversal:
		return true
	}
	return false
}

// OwnerKind says who runs the tab
type OwnerKind string

const (
	OwnerTable    OwnerKind = "table"
	OwnerCustomer OwnerKind = "customer"
)

// Owner identifies the table or customer holding the account
type Owner struct {
	Kind OwnerKind `json:"kind"`
	Ref  string    `json:"ref"`
	Name string    `json:"name,omitempty"`
}

// AccountStatus is derived from the balance
type AccountStatus string

const (
	AccountOpen   AccountStatus = "OPEN"
	AccountClosed AccountStatus = "CLOSED"
)

// Movement is an immutable ledger entry
type Movement struct {
	ID         uuid.UUID
	AccountID  string
	Seq        int
	Type       MovementType
	Amount     valueobject.Money
	ReversesID *uuid.UUID
	PaymentID  *uuid.UUID
	Note       string
	CreatedAt  time.Time
}

// MovementOptions carries the optional references of a movement
type MovementOptions struct {
	ReversesID *uuid.UUID
	PaymentID  *uuid.UUID
	Note       string
}

// ScalarAccount is a running tab
type ScalarAccount struct {
	ID        string
	Owner     Owner
	OpenedAt  time.Time
	Movements []Movement
}

// NewScalarAccount opens an account with no movements
func NewScalarAccount(id string, owner Owner) (*ScalarAccount, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, shared.NewValidationError("account id cannot be empty")
	}
	if owner.Kind == "" {
		owner.Kind = OwnerCustomer
	}
	if owner.Kind != OwnerCustomer && owner.Kind != OwnerTable {
		return nil, shared.NewValidationError("unknown owner kind %q", owner.Kind)
	}
	if owner.Ref == "" {
		owner.Ref = id
	}
	return &ScalarAccount{
		ID:       id,
		Owner:    owner,
		OpenedAt: time.Now(),
	}, nil
}

// Balance is the fold of an account's movements
type Balance struct {
	Ordini    valueobject.Money
	Pagamenti valueobject.Money
	// Storni is the net effect of applied reversals on what is owed
	Storni valueobject.Money
	Saldo  valueobject.Money
}

// Fold computes the balance from the movements
func (a *ScalarAccount) Fold() Balance {
	var b Balance
	byID := make(map[uuid.UUID]Movement, len(a.Movements))
	for _, m := range a.Movements {
		byID[m.ID] = m
	}
	for _, m := range a.Movements {
		switch m.Type {
		case MovementOrder:
			b.Ordini = b.Ordini.Add(m.Amount)
		case MovementPayment:
			b.Pagamenti = b.Pagamenti.Add(m.Amount)
		case MovementReversal:
			if m.ReversesID == nil {
				continue
			}
			target, ok := byID[*m.ReversesID]
			if !ok {
				continue
			}
			if target.Type == MovementOrder {
				b.Storni = b.Storni.Add(m.Amount)
			} else {
				b.Storni = b.Storni.Sub(m.Amount)
			}
		}
	}
	b.Saldo = b.Ordini.Sub(b.Pagamenti).Sub(b.Storni)
	return b
}

// Saldo is the remaining balance (saldoRimanente)
func (a *ScalarAccount) Saldo() valueobject.Money {
	return a.Fold().Saldo
}

// Status is CLOSED once movements exist and the balance is back to zero
func (a *ScalarAccount) Status() AccountStatus {
	if len(a.Movements) > 0 && a.Saldo().IsZero() {
		return AccountClosed
	}
	return AccountOpen
}

// Movement finds a movement by id
func (a *ScalarAccount) Movement(id uuid.UUID) (*Movement, bool) {
	for i := range a.Movements {
		if a.Movements[i].ID == id {
			return &a.Movements[i], true
		}
	}
	return nil, false
}

// MovementForPayment finds the movement recorded for a payment
func (a *ScalarAccount) MovementForPayment(paymentID uuid.UUID) (*Movement, bool) {
	for i := range a.Movements {
		if p := a.Movements[i].PaymentID; p != nil && *p == paymentID {
			return &a.Movements[i], true
		}
	}
	return nil, false
}

// ChargesForPayment returns the unreversed ORDINE movements recorded for a
// payment, oldest first
func (a *ScalarAccount) ChargesForPayment(paymentID uuid.UUID) []Movement {
	out := make([]Movement, 0, 1)
	for _, m := range a.Movements {
		if m.Type != MovementOrder || m.PaymentID == nil || *m.PaymentID != paymentID {
			continue
		}
		if a.isReversed(m.ID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (a *ScalarAccount) isReversed(id uuid.UUID) bool {
	for _, m := range a.Movements {
		if m.Type == MovementReversal && m.ReversesID != nil && *m.ReversesID == id {
			return true
		}
	}
	return false
}

// Record validates and appends a movement. The balance can never go negative:
// a PAGAMENTO above the saldo, or a STORNO that would push it below zero, is
// rejected.
func (a *ScalarAccount) Record(typ MovementType, amount valueobject.Money, opts MovementOptions) (*Movement, error) {
	if !typ.IsValid() {
		return nil, shared.NewValidationError("unknown movement type %q", typ)
	}
	saldo := a.Saldo()

	switch typ {
	case MovementOrder:
		if !amount.IsPositive() {
			return nil, shared.NewValidationError("ORDINE amount must be positive")
		}
	case MovementPayment:
		if !amount.IsPositive() {
			return nil, shared.NewValidationError("PAGAMENTO amount must be positive")
		}
		if amount.GreaterThan(saldo) {
			return nil, shared.NewValidationError("PAGAMENTO %s exceeds saldo %s", amount, saldo)
		}
	case MovementReversal:
		if opts.ReversesID == nil {
			return nil, shared.NewValidationError("STORNO must reference the movement it reverses")
		}
		target, ok := a.Movement(*opts.ReversesID)
		if !ok {
			return nil, shared.NewValidationError("movement %s not found on account %s", *opts.ReversesID, a.ID)
		}
		if target.Type == MovementReversal {
			return nil, shared.NewValidationError("a STORNO cannot be reversed")
		}
		if a.isReversed(target.ID) {
			return nil, shared.NewValidationError("movement %s is already reversed", target.ID)
		}
		if !amount.IsZero() && !amount.Equals(target.Amount) {
			return nil, shared.NewValidationError("STORNO amount %s must equal reversed amount %s", amount, target.Amount)
		}
		amount = target.Amount
		if target.Type == MovementOrder && amount.GreaterThan(saldo) {
			return nil, shared.NewValidationError("STORNO of %s would leave a negative saldo (%s)", amount, saldo)
		}
	}

	m := Movement{
		ID:         uuid.New(),
		AccountID:  a.ID,
		Seq:        len(a.Movements) + 1,
		Type:       typ,
		Amount:     amount,
		ReversesID: opts.ReversesID,
		PaymentID:  opts.PaymentID,
		Note:       opts.Note,
		CreatedAt:  time.Now(),
	}
	a.Movements = append(a.Movements, m)
	return &a.Movements[len(a.Movements)-1], nil
}
