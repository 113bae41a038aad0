package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order 一行订单对应一个商品。商品字段在下单时快照，后续改商品不影响历史订单。
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UniqueID string  `gorm:"size:16;uniqueIndex;not null" json:"unique_id"`
	BatchID  *string `gorm:"size:64;index" json:"batch_id"`

	ProductID    uint            `gorm:"not null;index" json:"product_id"`
	Product      *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	ProductName  string          `gorm:"size:255;not null" json:"product_name"`
	ProductPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"product_price"`
	ProductImage string          `gorm:"size:512" json:"product_image"`
	ProductSize  string          `gorm:"size:32" json:"product_size"`
	ProductColor string          `gorm:"size:64" json:"product_color"`

	CustomerFullName string `gorm:"size:255;not null" json:"customer_full_name"`
	CustomerEmail    string `gorm:"size:255;not null;index" json:"customer_email"`
	CustomerPhone    string `gorm:"size:32;not null" json:"customer_phone"`
	CustomerAddress  string `gorm:"size:512;not null" json:"customer_address"`
	CustomerCity     string `gorm:"size:128;not null" json:"customer_city"`
	CustomerCountry  string `gorm:"size:32;not null" json:"customer_country"`

	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"` // 含运费
	ShippingFee decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"shipping_fee"`
	Notes       string          `gorm:"type:text" json:"notes"`

	Status      OrderStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	ConfirmedAt *time.Time  `json:"confirmed_at"`
	ShippedAt   *time.Time  `json:"shipped_at"`
	DeliveredAt *time.Time  `json:"delivered_at"`
}

func (Order) TableName() string { return "orders" }

// StampStatus records the lifecycle timestamp for status the first time it is
// reached. Timestamps that are already set are never overwritten or cleared.
func (o *Order) StampStatus(status OrderStatus, at time.Time) {
	var slot **time.Time
	switch status {
	case StatusConfirmed:
		slot = &o.ConfirmedAt
	case StatusShipped:
		slot = &o.ShippedAt
	case StatusDelivered:
		slot = &o.DeliveredAt
	default:
		return
	}
	if *slot == nil {
		t := at
		*slot = &t
	}
}

// SumTotals adds up total_amount over orders.
func SumTotals(orders []Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalAmount)
	}
	return total
}
