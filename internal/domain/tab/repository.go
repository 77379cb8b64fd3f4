package tab

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists accounts and their movements. Movements are
// append-only; AppendMovement fails with shared.ErrConcurrencyConflict when
// another writer already used the same sequence number.
type Repository interface {
	FindByID(ctx context.Context, id string) (*ScalarAccount, error)
	FindAll(ctx context.Context) ([]*ScalarAccount, error)
	CreateAccount(ctx context.Context, a *ScalarAccount) error
	AppendMovement(ctx context.Context, m *Movement) error
	FindMovementByPayment(ctx context.Context, paymentID uuid.UUID) (*Movement, error)
}
