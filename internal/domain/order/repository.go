package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for orders. Each write is atomic for one order.
type Repository interface {
	// FindByID finds an order by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindOpen returns every order not yet closed
	FindOpen(ctx context.Context) ([]*Order, error)

	// FindOpenByTable returns the open orders whose table reference classifies to key
	FindOpenByTable(ctx context.Context, key string) ([]*Order, error)

	// Create inserts a new order
	Create(ctx context.Context, o *Order) error

	// SaveWithLock updates an order if the stored version is still o.Version-1.
	// Returns shared.ErrConcurrencyConflict otherwise.
	SaveWithLock(ctx context.Context, o *Order) error
}
