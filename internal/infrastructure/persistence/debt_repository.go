package persistence

import (
	"context"

	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDebtRepository implements debt.Repository using GORM
type GormDebtRepository struct {
	db *gorm.DB
}

// NewGormDebtRepository creates a new GormDebtRepository
func NewGormDebtRepository(db *gorm.DB) *GormDebtRepository {
	return &GormDebtRepository{db: db}
}

// FindByID finds a debt by its ID
func (r *GormDebtRepository) FindByID(ctx context.Context, id uuid.UUID) (*debt.Debt, error) {
	var model models.DebtModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "load debt")
	}
	return decodeDebt(&model)
}

// FindByCustomer returns a customer's debts, newest first
func (r *GormDebtRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID, includeSettled bool) ([]*debt.Debt, error) {
	query := r.db.WithContext(ctx).Where("customer_id = ?", customerID)
	if !includeSettled {
		query = query.Where("state = ?", string(debt.StateOpen))
	}
	var rows []models.DebtModel
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, TranslateError(err, "list customer debts")
	}
	out := make([]*debt.Debt, 0, len(rows))
	for i := range rows {
		d, err := decodeDebt(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Create inserts a new debt
func (r *GormDebtRepository) Create(ctx context.Context, d *debt.Debt) error {
	model, err := models.DebtModelFromDomain(d)
	if err != nil {
		return shared.NewPersistenceError("encode debt", err)
	}
	return TranslateError(r.db.WithContext(ctx).Create(model).Error, "create debt")
}

// SaveWithLock writes the debt only if the stored version is d.Version-1
func (r *GormDebtRepository) SaveWithLock(ctx context.Context, d *debt.Debt) error {
	model, err := models.DebtModelFromDomain(d)
	if err != nil {
		return shared.NewPersistenceError("encode debt", err)
	}
	result := r.db.WithContext(ctx).
		Model(&models.DebtModel{}).
		Where("id = ? AND version = ?", d.ID, d.Version-1).
		Updates(map[string]any{
			"payments":   model.PaymentsJSON,
			"state":      model.State,
			"settled_at": model.SettledAt,
			"note":       model.Note,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		})
	if result.Error != nil {
		return TranslateError(result.Error, "save debt")
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Delete removes a debt that never took effect on its order
func (r *GormDebtRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.DebtModel{}, "id = ?", id)
	if result.Error != nil {
		return TranslateError(result.Error, "delete debt")
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func decodeDebt(m *models.DebtModel) (*debt.Debt, error) {
	d, err := m.ToDomain()
	if err != nil {
		return nil, shared.NewPersistenceError("decode debt", err)
	}
	return d, nil
}
