package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// OrderModel is the persistence model for the Order aggregate
type OrderModel struct {
	AggregateModel
	Number        string     `gorm:"type:varchar(50);not null;index"`
	TableRef      string     `gorm:"type:varchar(50)"`
	TableKey      string     `gorm:"type:varchar(50);index"`
	CustomerID    *uuid.UUID `gorm:"type:uuid;index"`
	CustomerName  string     `gorm:"type:varchar(200)"`
	Waiter        string     `gorm:"type:varchar(100)"`
	LinesJSON     string     `gorm:"column:lines;type:jsonb;not null"`
	DeferralsJSON string     `gorm:"column:deferrals;type:jsonb;not null"`
	OpenedAt      time.Time  `gorm:"not null;index"`
	DeliveredAt   *time.Time
	ClosedAt      *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// lineDocument is the jsonb shape of one order line
type lineDocument struct {
	ID          uuid.UUID          `json:"id"`
	ProductName string             `json:"product_name"`
	UnitPrice   int64              `json:"unit_price_minor"`
	Quantity    int                `json:"quantity"`
	Allocations []order.Allocation `json:"allocations"`
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() (*order.Order, error) {
	var docs []lineDocument
	if err := json.Unmarshal([]byte(m.LinesJSON), &docs); err != nil {
		return nil, fmt.Errorf("decode lines of order %s: %w", m.ID, err)
	}
	deferrals := make([]order.Deferral, 0)
	if m.DeferralsJSON != "" {
		if err := json.Unmarshal([]byte(m.DeferralsJSON), &deferrals); err != nil {
			return nil, fmt.Errorf("decode deferrals of order %s: %w", m.ID, err)
		}
	}

	lines := make([]order.Line, 0, len(docs))
	for _, d := range docs {
		allocs := d.Allocations
		if allocs == nil {
			allocs = []order.Allocation{}
		}
		lines = append(lines, order.Line{
			ID:          d.ID,
			ProductName: d.ProductName,
			UnitPrice:   valueobject.Cents(d.UnitPrice),
			Quantity:    d.Quantity,
			Allocations: allocs,
		})
	}

	return &order.Order{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Number:            m.Number,
		TableRef:          m.TableRef,
		CustomerID:        m.CustomerID,
		CustomerName:      m.CustomerName,
		Waiter:            m.Waiter,
		Lines:             lines,
		Deferrals:         deferrals,
		OpenedAt:          m.OpenedAt,
		DeliveredAt:       m.DeliveredAt,
		ClosedAt:          m.ClosedAt,
	}, nil
}

// FromDomain populates the model from a domain Order
func (m *OrderModel) FromDomain(o *order.Order) error {
	docs := make([]lineDocument, 0, len(o.Lines))
	for _, l := range o.Lines {
		docs = append(docs, lineDocument{
			ID:          l.ID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice.Minor(),
			Quantity:    l.Quantity,
			Allocations: l.Allocations,
		})
	}
	lines, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode lines of order %s: %w", o.ID, err)
	}
	deferrals := o.Deferrals
	if deferrals == nil {
		deferrals = []order.Deferral{}
	}
	defs, err := json.Marshal(deferrals)
	if err != nil {
		return fmt.Errorf("encode deferrals of order %s: %w", o.ID, err)
	}

	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.Number = o.Number
	m.TableRef = o.TableRef
	m.TableKey = o.TableKey().Code
	m.CustomerID = o.CustomerID
	m.CustomerName = o.CustomerName
	m.Waiter = o.Waiter
	m.LinesJSON = string(lines)
	m.DeferralsJSON = string(defs)
	m.OpenedAt = o.OpenedAt
	m.DeliveredAt = o.DeliveredAt
	m.ClosedAt = o.ClosedAt
	return nil
}

// OrderModelFromDomain creates a persistence model from a domain Order
func OrderModelFromDomain(o *order.Order) (*OrderModel, error) {
	m := &OrderModel{}
	if err := m.FromDomain(o); err != nil {
		return nil, err
	}
	return m, nil
}
