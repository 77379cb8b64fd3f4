package persistence

import (
	"context"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by its ID, closed orders included
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "load order")
	}
	return model.ToDomain()
}

// FindOpen returns every open order, oldest first
func (r *GormOrderRepository) FindOpen(ctx context.Context) ([]*order.Order, error) {
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).
		Where("closed_at IS NULL").
		Order("opened_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, TranslateError(err, "list open orders")
	}
	return ordersToDomain(rows)
}

// FindOpenByTable returns the open orders grouped under the table code
func (r *GormOrderRepository) FindOpenByTable(ctx context.Context, key string) ([]*order.Order, error) {
	code := order.ParseTableKey(key).Code
	if code == "" {
		return []*order.Order{}, nil
	}
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).
		Where("closed_at IS NULL AND table_key = ?", code).
		Order("opened_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, TranslateError(err, "list table orders")
	}
	return ordersToDomain(rows)
}

// Create inserts a new order
func (r *GormOrderRepository) Create(ctx context.Context, o *order.Order) error {
	model, err := models.OrderModelFromDomain(o)
	if err != nil {
		return shared.NewPersistenceError("encode order", err)
	}
	return TranslateError(r.db.WithContext(ctx).Create(model).Error, "create order")
}

// SaveWithLock writes the order only if the stored version is o.Version-1.
// The single-row update is the order's atomic commit point.
func (r *GormOrderRepository) SaveWithLock(ctx context.Context, o *order.Order) error {
	model, err := models.OrderModelFromDomain(o)
	if err != nil {
		return shared.NewPersistenceError("encode order", err)
	}
	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ? AND version = ?", o.ID, o.Version-1).
		Updates(map[string]any{
			"table_ref":     model.TableRef,
			"table_key":     model.TableKey,
			"customer_id":   model.CustomerID,
			"customer_name": model.CustomerName,
			"waiter":        model.Waiter,
			"lines":         model.LinesJSON,
			"deferrals":     model.DeferralsJSON,
			"delivered_at":  model.DeliveredAt,
			"closed_at":     model.ClosedAt,
			"version":       model.Version,
			"updated_at":    model.UpdatedAt,
		})
	if result.Error != nil {
		return TranslateError(result.Error, "save order")
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func ordersToDomain(rows []models.OrderModel) ([]*order.Order, error) {
	out := make([]*order.Order, 0, len(rows))
	for i := range rows {
		o, err := rows[i].ToDomain()
		if err != nil {
			return nil, shared.NewPersistenceError("decode order", err)
		}
		out = append(out, o)
	}
	return out, nil
}
