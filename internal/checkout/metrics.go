package checkout

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("checkout")
	meter  = otel.Meter("checkout")
)

type instruments struct {
	ordersCreated   metric.Int64Counter
	paymentFailures metric.Int64Counter
	completed       metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	ordersCreated, err := meter.Int64Counter("checkout.orders.created",
		metric.WithDescription("Orders created by the checkout flow"),
	)
	if err != nil {
		return nil, err
	}

	paymentFailures, err := meter.Int64Counter("checkout.payment.failures",
		metric.WithDescription("Checkout steps that failed, by payment method and stage"),
	)
	if err != nil {
		return nil, err
	}

	completed, err := meter.Int64Counter("checkout.completed",
		metric.WithDescription("Checkouts that reached a successful payment step"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{
		ordersCreated:   ordersCreated,
		paymentFailures: paymentFailures,
		completed:       completed,
	}, nil
}

func (i *instruments) orderCreated(ctx context.Context, method string) {
	i.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", method)))
}

func (i *instruments) failure(ctx context.Context, method, stage string) {
	i.paymentFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", method),
		attribute.String("stage", stage),
	))
}

func (i *instruments) success(ctx context.Context, method string) {
	i.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", method)))
}
