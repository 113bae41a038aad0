package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商品：名称、售价、库存（按尺码或旧版总库存）
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CategoryID *uint     `gorm:"index" json:"category_id"`
	Category   *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`

	Name  string          `gorm:"size:255;not null" json:"name"`
	Price decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	// Stock is the legacy total counter. Once a product has size rows it is only a
	// display value; reservations go through SizeStocks.
	Stock int64 `gorm:"not null;default:0" json:"stock"`
	// Image is the raw stored path, MediaURL the managed media location.
	Image    string `gorm:"size:512" json:"image"`
	MediaURL string `gorm:"size:512" json:"media_url"`

	SizeStocks []SizeStock `gorm:"foreignKey:ProductID" json:"size_stocks,omitempty"`
}

func (Product) TableName() string { return "products" }

// HasSizeStock reports whether the product is in per-size mode.
func (p *Product) HasSizeStock() bool { return len(p.SizeStocks) > 0 }

// TotalStock is the sum of size rows in per-size mode, the legacy counter otherwise.
func (p *Product) TotalStock() int64 {
	if !p.HasSizeStock() {
		return p.Stock
	}
	var total int64
	for _, s := range p.SizeStocks {
		total += s.Quantity
	}
	return total
}

// SizeLabels lists the sizes in row order.
func (p *Product) SizeLabels() []string {
	out := make([]string, 0, len(p.SizeStocks))
	for _, s := range p.SizeStocks {
		out = append(out, s.Size)
	}
	return out
}
