package sandbox

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

var meter = otel.Meter("sandbox")

var (
	ordersCreated, _   = meter.Int64Counter("sandbox.orders.created", metric.WithDescription("Orders accepted by the sandbox API"))
	ordersPaid, _      = meter.Int64Counter("sandbox.orders.paid", metric.WithDescription("Orders moved to paid"))
	ordersDelivered, _ = meter.Int64Counter("sandbox.orders.delivered", metric.WithDescription("Orders moved to delivered"))
)

func paymentMethodAttr(method domain.PaymentMethodType) metric.AddOption {
	return metric.WithAttributes(attribute.String("payment_method", string(method)))
}
