package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutEventType string

const (
	CheckoutOrderCreated     CheckoutEventType = "checkout.order_created"
	CheckoutPaymentSucceeded CheckoutEventType = "checkout.payment_succeeded"
	CheckoutPaymentFailed    CheckoutEventType = "checkout.payment_failed"
	CheckoutRedirected       CheckoutEventType = "checkout.redirected"
)

// CheckoutEvent is emitted by the storefront as a checkout session advances.
type CheckoutEvent struct {
	Type          CheckoutEventType `json:"type"`
	CheckoutID    string            `json:"checkout_id"`
	OrderID       string            `json:"order_id,omitempty"`
	PaymentMethod PaymentMethodType `json:"payment_method"`
	Total         decimal.Decimal   `json:"total"`
	Error         string            `json:"error,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// OrderEvent is published by the sandbox API when an order changes state.
type OrderEvent struct {
	OrderID       string            `json:"order_id"`
	UserID        string            `json:"user_id"`
	Status        OrderStatus       `json:"status"`
	PaymentMethod PaymentMethodType `json:"payment_method"`
	Items         []OrderItem       `json:"items"`
	Timestamp     time.Time         `json:"timestamp"`
}
