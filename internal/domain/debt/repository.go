package debt

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for debts
type Repository interface {
	// FindByID finds a debt by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Debt, error)

	// FindByCustomer returns a customer's debts, newest first
	FindByCustomer(ctx context.Context, customerID uuid.UUID, includeSettled bool) ([]*Debt, error)

	// Create inserts a new debt
	Create(ctx context.Context, d *Debt) error

	// SaveWithLock updates a debt if the stored version is still d.Version-1
	SaveWithLock(ctx context.Context, d *Debt) error

	// Delete removes a debt that never took effect on its order
	Delete(ctx context.Context, id uuid.UUID) error
}
