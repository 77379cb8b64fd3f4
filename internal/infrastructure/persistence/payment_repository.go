package persistence

import (
	"context"

	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPaymentRepository implements payment.Repository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by its ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "load payment")
	}
	return decodePayment(&model)
}

// FindByOrder returns the order's payments, newest first
func (r *GormPaymentRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*payment.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, TranslateError(err, "list order payments")
	}
	out := make([]*payment.Payment, 0, len(rows))
	for i := range rows {
		p, err := decodePayment(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FindLatestForOrder returns the most recent payment that did not fail
func (r *GormPaymentRepository) FindLatestForOrder(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, string(payment.StatusFailed)).
		Order("created_at DESC, id DESC").
		First(&model).Error; err != nil {
		return nil, TranslateError(err, "load latest payment")
	}
	return decodePayment(&model)
}

// Create inserts a new payment
func (r *GormPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	model, err := models.PaymentModelFromDomain(p)
	if err != nil {
		return shared.NewPersistenceError("encode payment", err)
	}
	return TranslateError(r.db.WithContext(ctx).Create(model).Error, "create payment")
}

// SaveWithLock writes the payment only if the stored version is p.Version-1
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, p *payment.Payment) error {
	model, err := models.PaymentModelFromDomain(p)
	if err != nil {
		return shared.NewPersistenceError("encode payment", err)
	}
	result := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", p.ID, p.Version-1).
		Updates(map[string]any{
			"amount_minor":   model.AmountMinor,
			"selections":     model.SelectionsJSON,
			"status":         model.Status,
			"failure_reason": model.FailureReason,
			"cancel_reason":  model.CancelReason,
			"cancelled_at":   model.CancelledAt,
			"version":        model.Version,
			"updated_at":     model.UpdatedAt,
		})
	if result.Error != nil {
		return TranslateError(result.Error, "save payment")
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func decodePayment(m *models.PaymentModel) (*payment.Payment, error) {
	p, err := m.ToDomain()
	if err != nil {
		return nil, shared.NewPersistenceError("decode payment", err)
	}
	return p, nil
}
