package catalog

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/validation"
)

type SizeStockInput struct {
	Size     string `json:"size" validate:"required,max=32"`
	Quantity int64  `json:"quantity" validate:"gte=0"`
}

// ProductInput is the admin create payload.
type ProductInput struct {
	Name       string           `json:"name" validate:"required,max=255"`
	Price      decimal.Decimal  `json:"price" validate:"gte=0"`
	CategoryID *uint            `json:"category_id"`
	Stock      int64            `json:"stock" validate:"gte=0"`
	Image      string           `json:"image" validate:"max=512"`
	MediaURL   string           `json:"media_url" validate:"omitempty,url,max=512"`
	SizeStocks []SizeStockInput `json:"size_stocks" validate:"dive"`
}

// CreateProduct inserts a product and its size rows in one transaction.
func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(in.SizeStocks))
	sizes := make([]model.SizeStock, 0, len(in.SizeStocks))
	for _, ss := range in.SizeStocks {
		size := strings.TrimSpace(ss.Size)
		if _, dup := seen[size]; dup {
			return nil, apperr.Validation("size_stocks", "Size "+size+" is listed more than once.")
		}
		seen[size] = struct{}{}
		sizes = append(sizes, model.SizeStock{Size: size, Quantity: ss.Quantity})
	}

	p := model.Product{
		CategoryID: in.CategoryID,
		Name:       in.Name,
		Price:      in.Price,
		Stock:      in.Stock,
		Image:      in.Image,
		MediaURL:   in.MediaURL,
		SizeStocks: sizes,
	}
	// 按尺码管理时旧总库存只作展示，与各尺码之和保持一致
	if len(sizes) > 0 {
		p.Stock = p.TotalStock()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.CategoryID != nil {
			var n int64
			if err := tx.Model(&model.Category{}).Where("id = ?", *in.CategoryID).Count(&n).Error; err != nil {
				return errors.Wrap(err, "check category")
			}
			if n == 0 {
				return apperr.Validation("category_id", "The selected category id is invalid.")
			}
		}
		return tx.Create(&p).Error
	})
	if err != nil {
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create product")
	}
	return s.FindProductWithSizeStocks(ctx, p.ID)
}
