package order

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CreateInput is the checkout payload.
type CreateInput struct {
	CustomerFullName string          `json:"customer_full_name" validate:"required,max=255"`
	CustomerEmail    string          `json:"customer_email" validate:"required,email,max=255"`
	CustomerPhone    string          `json:"customer_phone" validate:"required,max=32"`
	CustomerAddress  string          `json:"customer_address" validate:"required,max=512"`
	CustomerCity     string          `json:"customer_city" validate:"required,max=128"`
	CustomerCountry  string          `json:"customer_country" validate:"required,oneof=albania kosovo macedonia"`
	ProductID        uint            `json:"product_id" validate:"required"`
	ProductPrice     decimal.Decimal `json:"product_price" validate:"gte=0"`
	ProductSize      string          `json:"product_size" validate:"max=32"`
	ProductColor     string          `json:"product_color" validate:"max=64"`
	Quantity         int             `json:"quantity" validate:"min=1,max=100"`
	TotalAmount      decimal.Decimal `json:"total_amount" validate:"gte=0"`
	ShippingFee      decimal.Decimal `json:"shipping_fee" validate:"gte=0"`
	Notes            string          `json:"notes" validate:"max=2000"`
	BatchID          *string         `json:"batch_id" validate:"omitempty,max=64"`
	IsBatchOrder     bool            `json:"is_batch_order"`
}

// normalize trims free text and canonicalises the email so batch correlation
// matches regardless of case.
func (in *CreateInput) normalize() {
	in.CustomerFullName = strings.TrimSpace(in.CustomerFullName)
	in.CustomerEmail = strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	in.CustomerAddress = strings.TrimSpace(in.CustomerAddress)
	in.CustomerCity = strings.TrimSpace(in.CustomerCity)
	in.CustomerCountry = strings.ToLower(strings.TrimSpace(in.CustomerCountry))
	in.ProductSize = strings.TrimSpace(in.ProductSize)
	in.ProductColor = strings.TrimSpace(in.ProductColor)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.BatchID != nil {
		b := strings.TrimSpace(*in.BatchID)
		if b == "" {
			in.BatchID = nil
		} else {
			in.BatchID = &b
		}
	}
}
