package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for payments
type Repository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByOrder returns an order's payments, newest first
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)

	// FindLatestForOrder returns the most recent non-failed payment of an order
	FindLatestForOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)

	// Create inserts a new payment
	Create(ctx context.Context, p *Payment) error

	// SaveWithLock updates a payment if the stored version is still p.Version-1
	SaveWithLock(ctx context.Context, p *Payment) error
}
