package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID         string          `json:"id"`
	Title      string          `json:"title,omitempty"`
	Price      decimal.Decimal `json:"price"`
	ImageCover string          `json:"imageCover,omitempty"`
}

// CartLineItem pairs a product with a positive quantity.
type CartLineItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// LineTotal is the unit price times the quantity.
func (l CartLineItem) LineTotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
