package models

import (
	"time"

	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/domain/tab"
	"github.com/google/uuid"
)

// TabAccountModel is the persistence model for a running tab. Its balance
// is never stored; it is folded from the movements.
type TabAccountModel struct {
	ID        string    `gorm:"type:varchar(100);primary_key"`
	OwnerKind string    `gorm:"type:varchar(20);not null"`
	OwnerRef  string    `gorm:"type:varchar(100);not null"`
	OwnerName string    `gorm:"type:varchar(200)"`
	OpenedAt  time.Time `gorm:"not null"`

	Movements []TabMovementModel `gorm:"foreignKey:AccountID;references:ID"`
}

// TableName returns the table name for GORM
func (TabAccountModel) TableName() string {
	return "tab_accounts"
}

// TabMovementModel is one append-only movement. (account_id, seq) is
// unique, which makes the insert the account's atomic append point.
type TabMovementModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	AccountID   string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_tab_movements_account_seq,priority:1"`
	Seq         int        `gorm:"not null;uniqueIndex:idx_tab_movements_account_seq,priority:2"`
	Type        string     `gorm:"type:varchar(20);not null"`
	AmountMinor int64      `gorm:"not null"`
	ReversesID  *uuid.UUID `gorm:"type:uuid"`
	PaymentID   *uuid.UUID `gorm:"type:uuid;index"`
	Note        string     `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TabMovementModel) TableName() string {
	return "tab_movements"
}

// ToDomain converts the persistence model to a domain ScalarAccount
func (m *TabAccountModel) ToDomain() *tab.ScalarAccount {
	a := &tab.ScalarAccount{
		ID: m.ID,
		Owner: tab.Owner{
			Kind: tab.OwnerKind(m.OwnerKind),
			Ref:  m.OwnerRef,
			Name: m.OwnerName,
		},
		OpenedAt:  m.OpenedAt,
		Movements: make([]tab.Movement, 0, len(m.Movements)),
	}
	for i := range m.Movements {
		a.Movements = append(a.Movements, m.Movements[i].ToDomain())
	}
	return a
}

// TabAccountModelFromDomain creates the account row without its movements
func TabAccountModelFromDomain(a *tab.ScalarAccount) *TabAccountModel {
	return &TabAccountModel{
		ID:        a.ID,
		OwnerKind: string(a.Owner.Kind),
		OwnerRef:  a.Owner.Ref,
		OwnerName: a.Owner.Name,
		OpenedAt:  a.OpenedAt,
	}
}

// ToDomain converts the persistence model to a domain Movement
func (m *TabMovementModel) ToDomain() tab.Movement {
	return tab.Movement{
		ID:         m.ID,
		AccountID:  m.AccountID,
		Seq:        m.Seq,
		Type:       tab.MovementType(m.Type),
		Amount:     valueobject.Cents(m.AmountMinor),
		ReversesID: m.ReversesID,
		PaymentID:  m.PaymentID,
		Note:       m.Note,
		CreatedAt:  m.CreatedAt,
	}
}

// TabMovementModelFromDomain creates a persistence model from a domain Movement
func TabMovementModelFromDomain(mv *tab.Movement) *TabMovementModel {
	return &TabMovementModel{
		ID:          mv.ID,
		AccountID:   mv.AccountID,
		Seq:         mv.Seq,
		Type:        string(mv.Type),
		AmountMinor: mv.Amount.Minor(),
		ReversesID:  mv.ReversesID,
		PaymentID:   mv.PaymentID,
		Note:        mv.Note,
		CreatedAt:   mv.CreatedAt,
	}
}

// All returns every model for AutoMigrate in tests
func All() []any {
	return []any{
		&OrderModel{},
		&PaymentModel{},
		&DebtModel{},
		&TabAccountModel{},
		&TabMovementModel{},
	}
}
