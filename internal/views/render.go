package views

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

var templates = template.Must(template.New("views").Funcs(template.FuncMap{
	"status":    func(o domain.Order) string { return StatusText(EffectiveStatus(o)) },
	"icon":      PaymentIcon,
	"currency":  FormatCurrency,
	"date":      func(v any) string { return dateOf(v, FormatDate) },
	"longDate":  func(v any) string { return dateOf(v, FormatLongDate) },
	"lineTotal": lineTotal,
}).Parse(`
{{- define "order_lines" -}}
{{- range .CartItems}}
  {{.Product}}  x{{.Quantity}}  {{currency .Price}}  = {{currency (lineTotal .)}}
{{- end}}
{{- end -}}

{{- define "history" -}}
My Orders ({{.TotalOrders}})
{{- if .Error}}
! {{.Error}}
{{- else if not .Orders}}
You have no orders yet.
{{- else}}
{{- range .Orders}}
#{{.ID}}  {{date .CreatedAt}}  {{status .}}  {{icon .PaymentMethodType}}  {{currency .TotalOrderPrice}}
{{- end}}
Page {{.CurrentPage}} of {{.TotalPages}}  {{.PageNumbers}}
{{- end}}
{{end -}}

{{- define "detail" -}}
{{- if .Error -}}
! {{.Error}}
{{else with .Order -}}
Order #{{.ID}}
Placed:    {{longDate .CreatedAt}}
Status:    {{status .}}
Payment:   {{icon .PaymentMethodType}} {{.PaymentMethodType}}{{if .IsPaid}} (paid {{longDate .PaidAt}}){{end}}
{{- if .IsDelivered}}
Delivered: {{longDate .DeliveredAt}}
{{- end}}
{{- with .ShippingAddress}}
Ship to:   {{.Details}}, {{.City}}{{if .PostalCode}} {{.PostalCode}}{{end}} ({{.Phone}})
{{- end}}
Items:
{{- template "order_lines" .}}
Total:     {{currency .TotalOrderPrice}}
{{end -}}
{{- end -}}

{{- define "confirmation" -}}
{{- with .Order -}}
Thank you! Your order has been placed.
Order #{{.ID}}  {{status .}}  {{icon .PaymentMethodType}}
{{- template "order_lines" .}}
Total: {{currency .TotalOrderPrice}}
{{else -}}
Thank you! Your order {{.OrderID}} has been placed.
{{end -}}
{{- end -}}
`))

func render(w io.Writer, name string, data any) error {
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

func lineTotal(item domain.OrderItem) decimal.Decimal {
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func dateOf(v any, format func(*time.Time) string) string {
	switch t := v.(type) {
	case time.Time:
		return format(&t)
	case *time.Time:
		return format(t)
	default:
		return format(nil)
	}
}
