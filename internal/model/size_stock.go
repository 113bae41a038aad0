package model

import "time"

// SizeStock 按尺码的库存计数，(product_id, size) 唯一。
type SizeStock struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProductID uint   `gorm:"not null;uniqueIndex:idx_size_stocks_product_size" json:"product_id"`
	Size      string `gorm:"size:32;not null;uniqueIndex:idx_size_stocks_product_size" json:"size"`
	Quantity  int64  `gorm:"not null;default:0" json:"quantity"`
}

func (SizeStock) TableName() string { return "size_stocks" }
