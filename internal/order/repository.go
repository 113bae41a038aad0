package order

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

// Repository is the gorm-backed order store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Preload("Product").Take(&o, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %d", id)
	}
	return &o, nil
}

func (r *Repository) FindByUniqueID(ctx context.Context, uniqueID string) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Preload("Product").
		Where("unique_id = ?", strings.ToUpper(strings.TrimSpace(uniqueID))).
		Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Resource: "order", ID: uniqueID}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %s", uniqueID)
	}
	return &o, nil
}

// RecentByEmail lists a customer's orders created at or after since, oldest
// first with id as tie-break.
func (r *Repository) RecentByEmail(ctx context.Context, email string, since time.Time) ([]model.Order, error) {
	var orders []model.Order
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("customer_email = ? AND created_at >= ?", strings.ToLower(strings.TrimSpace(email)), since.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, errors.Wrap(err, "recent orders by email")
	}
	return orders, nil
}

// saveStatus writes the status change columns only.
func saveStatus(tx *gorm.DB, o *model.Order) error {
	return tx.Model(o).
		Select("status", "notes", "confirmed_at", "shipped_at", "delivered_at", "updated_at").
		Updates(o).Error
}
