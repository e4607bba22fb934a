package views

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

const (
	shortDateLayout = "Jan 2, 2006, 03:04 PM"
	longDateLayout  = "January 2, 2006, 03:04 PM"
)

func StatusText(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusPending:
		return "Pending"
	case domain.OrderStatusPaid:
		return "Paid"
	case domain.OrderStatusDelivered:
		return "Delivered"
	case domain.OrderStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// EffectiveStatus derives a status for orders the API returned without one.
func EffectiveStatus(order domain.Order) domain.OrderStatus {
	switch {
	case order.Status != "":
		return order.Status
	case order.IsDelivered:
		return domain.OrderStatusDelivered
	case order.IsPaid:
		return domain.OrderStatusPaid
	default:
		return domain.OrderStatusPending
	}
}

func PaymentIcon(method domain.PaymentMethodType) string {
	switch method {
	case domain.PaymentMethodCash:
		return "💵"
	case "paypal":
		return "🅿️"
	default:
		return "💳"
	}
}

// FormatCurrency renders an amount as US dollars, e.g. $1,234.50.
func FormatCurrency(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}

	whole, frac, _ := strings.Cut(amount.StringFixed(2), ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	return sign + "$" + b.String() + "." + frac
}

// FormatDate renders t in the short form, or "N/A" for nil and zero times.
func FormatDate(t *time.Time) string {
	return formatDate(t, shortDateLayout)
}

func FormatLongDate(t *time.Time) string {
	return formatDate(t, longDateLayout)
}

func formatDate(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return t.Format(layout)
}

// PageNumbers returns up to five page numbers centred on current.
func PageNumbers(current, total int) []int {
	if total < 1 {
		return nil
	}

	start := max(1, current-2)
	end := min(total, start+4)
	if end-start < 4 {
		start = max(1, end-4)
	}

	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}
