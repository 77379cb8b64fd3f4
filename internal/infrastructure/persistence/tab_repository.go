package persistence

import (
	"context"

	"github.com/cassa/backend/internal/domain/tab"
	"github.com/cassa/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTabRepository implements tab.Repository using GORM. Movements are
// only ever inserted.
type GormTabRepository struct {
	db *gorm.DB
}

// NewGormTabRepository creates a new GormTabRepository
func NewGormTabRepository(db *gorm.DB) *GormTabRepository {
	return &GormTabRepository{db: db}
}

func orderedMovements(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

// FindByID loads an account with all of its movements
func (r *GormTabRepository) FindByID(ctx context.Context, id string) (*tab.ScalarAccount, error) {
	var model models.TabAccountModel
	if err := r.db.WithContext(ctx).
		Preload("Movements", orderedMovements).
		First(&model, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "load tab account")
	}
	return model.ToDomain(), nil
}

// FindAll loads every account with its movements, ordered by id
func (r *GormTabRepository) FindAll(ctx context.Context) ([]*tab.ScalarAccount, error) {
	var rows []models.TabAccountModel
	if err := r.db.WithContext(ctx).
		Preload("Movements", orderedMovements).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, TranslateError(err, "list tab accounts")
	}
	out := make([]*tab.ScalarAccount, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// CreateAccount inserts the account row. An existing id yields
// shared.ErrConcurrencyConflict.
func (r *GormTabRepository) CreateAccount(ctx context.Context, a *tab.ScalarAccount) error {
	model := models.TabAccountModelFromDomain(a)
	return TranslateError(r.db.WithContext(ctx).Omit("Movements").Create(model).Error, "create tab account")
}

// AppendMovement inserts one movement. A duplicate (account_id, seq) means
// another writer appended first and yields shared.ErrConcurrencyConflict.
func (r *GormTabRepository) AppendMovement(ctx context.Context, m *tab.Movement) error {
	model := models.TabMovementModelFromDomain(m)
	return TranslateError(r.db.WithContext(ctx).Create(model).Error, "append tab movement")
}

// FindMovementByPayment returns the movement recorded for a payment
func (r *GormTabRepository) FindMovementByPayment(ctx context.Context, paymentID uuid.UUID) (*tab.Movement, error) {
	var model models.TabMovementModel
	if err := r.db.WithContext(ctx).First(&model, "payment_id = ?", paymentID).Error; err != nil {
		return nil, TranslateError(err, "load movement by payment")
	}
	mv := model.ToDomain()
	return &mv, nil
}
