package domain

import "github.com/shopspring/decimal"

// TaxRate is applied to the cart subtotal.
var TaxRate = decimal.NewFromFloat(0.10)

type OrderSummary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Summarize derives the order summary for a set of line items.
func Summarize(items []CartLineItem, shipping decimal.Decimal) OrderSummary {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	tax := subtotal.Mul(TaxRate).Round(2)

	return OrderSummary{
		Subtotal: subtotal.Round(2),
		Tax:      tax,
		Shipping: shipping.Round(2),
		Total:    subtotal.Add(tax).Add(shipping).Round(2),
	}
}
