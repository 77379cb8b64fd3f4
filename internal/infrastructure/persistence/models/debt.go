package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// DebtModel is the persistence model for the Debt aggregate
type DebtModel struct {
	AggregateModel
	CustomerID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	CustomerName  string     `gorm:"type:varchar(200)"`
	SourceOrderID *uuid.UUID `gorm:"type:uuid;index"`
	AmountMinor   int64      `gorm:"not null"`
	PaymentsJSON  string     `gorm:"column:payments;type:jsonb;not null"`
	Note          string     `gorm:"type:text"`
	State         string     `gorm:"type:varchar(20);not null;index"`
	SettledAt     *time.Time
}

// TableName returns the table name for GORM
func (DebtModel) TableName() string {
	return "debts"
}

// ToDomain converts the persistence model to a domain Debt
func (m *DebtModel) ToDomain() (*debt.Debt, error) {
	payments := make([]debt.DebtPayment, 0)
	if m.PaymentsJSON != "" {
		if err := json.Unmarshal([]byte(m.PaymentsJSON), &payments); err != nil {
			return nil, fmt.Errorf("decode payments of debt %s: %w", m.ID, err)
		}
	}
	return &debt.Debt{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		CustomerID:        m.CustomerID,
		CustomerName:      m.CustomerName,
		SourceOrderID:     m.SourceOrderID,
		Amount:            valueobject.Cents(m.AmountMinor),
		Payments:          payments,
		Note:              m.Note,
		State:             debt.State(m.State),
		SettledAt:         m.SettledAt,
	}, nil
}

// FromDomain populates the model from a domain Debt
func (m *DebtModel) FromDomain(d *debt.Debt) error {
	payments := d.Payments
	if payments == nil {
		payments = []debt.DebtPayment{}
	}
	data, err := json.Marshal(payments)
	if err != nil {
		return fmt.Errorf("encode payments of debt %s: %w", d.ID, err)
	}

	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	m.CustomerID = d.CustomerID
	m.CustomerName = d.CustomerName
	m.SourceOrderID = d.SourceOrderID
	m.AmountMinor = d.Amount.Minor()
	m.PaymentsJSON = string(data)
	m.Note = d.Note
	m.State = string(d.State)
	m.SettledAt = d.SettledAt
	return nil
}

// DebtModelFromDomain creates a persistence model from a domain Debt
func DebtModelFromDomain(d *debt.Debt) (*DebtModel, error) {
	m := &DebtModel{}
	if err := m.FromDomain(d); err != nil {
		return nil, err
	}
	return m, nil
}
