package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// PaymentModel is the persistence model for the Payment aggregate
type PaymentModel struct {
	AggregateModel
	OrderID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	BatchID        *uuid.UUID `gorm:"type:uuid;index"`
	Mode           string     `gorm:"type:varchar(20);not null"`
	AmountMinor    int64      `gorm:"not null"`
	Method         string     `gorm:"type:varchar(20);not null"`
	Payer          string     `gorm:"type:varchar(200)"`
	SelectionsJSON string     `gorm:"column:selections;type:jsonb;not null"`
	Status         string     `gorm:"type:varchar(30);not null;index"`
	FailureReason  string     `gorm:"type:text"`
	CancelReason   string     `gorm:"type:text"`
	CancelledAt    *time.Time
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() (*payment.Payment, error) {
	selections := make([]order.Selection, 0)
	if m.SelectionsJSON != "" {
		if err := json.Unmarshal([]byte(m.SelectionsJSON), &selections); err != nil {
			return nil, fmt.Errorf("decode selections of payment %s: %w", m.ID, err)
		}
	}
	return &payment.Payment{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		OrderID:           m.OrderID,
		BatchID:           m.BatchID,
		Mode:              payment.Mode(m.Mode),
		Amount:            valueobject.Cents(m.AmountMinor),
		Method:            payment.Method(m.Method),
		Payer:             m.Payer,
		Selections:        selections,
		Status:            payment.Status(m.Status),
		FailureReason:     m.FailureReason,
		CancelReason:      m.CancelReason,
		CancelledAt:       m.CancelledAt,
	}, nil
}

// FromDomain populates the model from a domain Payment
func (m *PaymentModel) FromDomain(p *payment.Payment) error {
	selections := p.Selections
	if selections == nil {
		selections = []order.Selection{}
	}
	data, err := json.Marshal(selections)
	if err != nil {
		return fmt.Errorf("encode selections of payment %s: %w", p.ID, err)
	}

	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.OrderID = p.OrderID
	m.BatchID = p.BatchID
	m.Mode = string(p.Mode)
	m.AmountMinor = p.Amount.Minor()
	m.Method = string(p.Method)
	m.Payer = p.Payer
	m.SelectionsJSON = string(data)
	m.Status = string(p.Status)
	m.FailureReason = p.FailureReason
	m.CancelReason = p.CancelReason
	m.CancelledAt = p.CancelledAt
	return nil
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *payment.Payment) (*PaymentModel, error) {
	m := &PaymentModel{}
	if err := m.FromDomain(p); err != nil {
		return nil, err
	}
	return m, nil
}
