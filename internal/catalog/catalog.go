// Package catalog is the read side of products plus the minimal admin create.
package catalog

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

// Reader is what checkout needs from the catalog.
type Reader interface {
	FindProductWithSizeStocks(ctx context.Context, id uint) (*model.Product, error)
	ResolveProductImage(p *model.Product) string
}

// SizeAvailability is one row of the public stock view.
type SizeAvailability struct {
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
	Available bool   `json:"available"`
}

type Store struct {
	db           *gorm.DB
	mediaBaseURL string
}

var _ Reader = (*Store)(nil)

func NewStore(db *gorm.DB, mediaBaseURL string) *Store {
	return &Store{db: db, mediaBaseURL: strings.TrimRight(mediaBaseURL, "/")}
}

func withSizeStocks(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

func (s *Store) FindProductWithSizeStocks(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	err := s.db.WithContext(ctx).
		Preload("SizeStocks", withSizeStocks).
		Preload("Category").
		Take(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Resource: "product", ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find product %d", id)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := s.db.WithContext(ctx).
		Preload("SizeStocks", withSizeStocks).
		Preload("Category").
		Order("id").
		Find(&products).Error; err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// SizeAvailability lists per-size stock. Products without size rows report a
// single unlabeled row for the legacy counter.
func (s *Store) SizeAvailability(ctx context.Context, id uint) ([]SizeAvailability, error) {
	p, err := s.FindProductWithSizeStocks(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.HasSizeStock() {
		return []SizeAvailability{{Quantity: p.Stock, Available: p.Stock > 0}}, nil
	}
	out := make([]SizeAvailability, 0, len(p.SizeStocks))
	for _, ss := range p.SizeStocks {
		out = append(out, SizeAvailability{Size: ss.Size, Quantity: ss.Quantity, Available: ss.Quantity > 0})
	}
	return out, nil
}

// ResolveProductImage prefers the managed media URL, then the stored path
// under the media base URL, then the stored path as is.
func (s *Store) ResolveProductImage(p *model.Product) string {
	if p == nil {
		return ""
	}
	if p.MediaURL != "" {
		return p.MediaURL
	}
	if p.Image == "" {
		return ""
	}
	if isAbsoluteURL(p.Image) || s.mediaBaseURL == "" {
		return p.Image
	}
	return s.mediaBaseURL + "/" + strings.TrimLeft(p.Image, "/")
}

func isAbsoluteURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "//")
}
