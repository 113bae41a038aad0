package notify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/model"
)

const (
	AudienceCustomer = "customer"
	AudienceAdmin    = "admin"
)

// Message 是写入通知 topic 的事件，由外部邮件服务消费并渲染模板。
type Message struct {
	EventID    string          `json:"event_id"`
	Kind       string          `json:"kind"`
	Audience   string          `json:"audience"`
	Recipient  string          `json:"recipient"`
	Orders     []OrderSummary  `json:"orders"`
	Total      decimal.Decimal `json:"total"`
	FromStatus string          `json:"from_status,omitempty"`
	ToStatus   string          `json:"to_status,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// OrderSummary is the snapshot of an order a template needs.
type OrderSummary struct {
	UniqueID         string          `json:"unique_id"`
	BatchID          string          `json:"batch_id,omitempty"`
	ProductName      string          `json:"product_name"`
	ProductImage     string          `json:"product_image"`
	ProductSize      string          `json:"product_size,omitempty"`
	ProductColor     string          `json:"product_color,omitempty"`
	Quantity         int             `json:"quantity"`
	ProductPrice     decimal.Decimal `json:"product_price"`
	ShippingFee      decimal.Decimal `json:"shipping_fee"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	CustomerFullName string          `json:"customer_full_name"`
	CustomerEmail    string          `json:"customer_email"`
	CustomerPhone    string          `json:"customer_phone"`
	CustomerAddress  string          `json:"customer_address"`
	CustomerCity     string          `json:"customer_city"`
	CustomerCountry  string          `json:"customer_country"`
	Status           string          `json:"status"`
}

func summarize(o *model.Order) OrderSummary {
	s := OrderSummary{
		UniqueID:         o.UniqueID,
		ProductName:      o.ProductName,
		ProductImage:     o.ProductImage,
		ProductSize:      o.ProductSize,
		ProductColor:     o.ProductColor,
		Quantity:         o.Quantity,
		ProductPrice:     o.ProductPrice,
		ShippingFee:      o.ShippingFee,
		TotalAmount:      o.TotalAmount,
		CustomerFullName: o.CustomerFullName,
		CustomerEmail:    o.CustomerEmail,
		CustomerPhone:    o.CustomerPhone,
		CustomerAddress:  o.CustomerAddress,
		CustomerCity:     o.CustomerCity,
		CustomerCountry:  o.CustomerCountry,
		Status:           o.Status.String(),
	}
	if o.BatchID != nil {
		s.BatchID = *o.BatchID
	}
	return s
}

// Validate 做最小字段校验，防止邮件服务处理脏消息。
func (m Message) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if m.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if m.Audience != AudienceCustomer && m.Audience != AudienceAdmin {
		return fmt.Errorf("audience %q is invalid", m.Audience)
	}
	if m.Recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if len(m.Orders) == 0 {
		return fmt.Errorf("at least one order is required")
	}
	for _, o := range m.Orders {
		if o.UniqueID == "" {
			return fmt.Errorf("order unique_id is required")
		}
	}
	return nil
}
