package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the remote system will not move the order any further.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type PaymentMethodType string

const (
	PaymentMethodCash PaymentMethodType = "cash"
	PaymentMethodCard PaymentMethodType = "card"
)

type OrderItem struct {
	Product  string          `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type ShippingAddress struct {
	Details    string `json:"details"`
	Phone      string `json:"phone"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
}

type Order struct {
	ID                string            `json:"id"`
	CartItems         []OrderItem       `json:"cartItems,omitempty"`
	ShippingAddress   *ShippingAddress  `json:"shippingAddress,omitempty"`
	TotalOrderPrice   decimal.Decimal   `json:"totalOrderPrice"`
	PaymentMethodType PaymentMethodType `json:"paymentMethodType,omitempty"`
	IsPaid            bool              `json:"isPaid"`
	PaidAt            *time.Time        `json:"paidAt,omitempty"`
	IsDelivered       bool              `json:"isDelivered"`
	DeliveredAt       *time.Time        `json:"deliveredAt,omitempty"`
	Status            OrderStatus       `json:"status,omitempty"`
	User              string            `json:"user,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`

	// PaymentURL is set when the remote API hands back a gateway page for
	// payment methods other than cash and card.
	PaymentURL string `json:"url,omitempty"`
}

// UnmarshalJSON accepts both "id" and the document-store "_id".
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	var aux struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*o = Order(aux.plain)
	if o.ID == "" {
		o.ID = aux.MongoID
	}
	return nil
}

// Pagination mirrors the remote API's paging block.
type Pagination struct {
	CurrentPage   int `json:"currentPage"`
	NumberOfPages int `json:"numberOfPages"`
	Limit         int `json:"limit"`
}

// Envelope is the response wrapper used by every endpoint of the commerce API.
type Envelope[T any] struct {
	Status     string      `json:"status,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       T           `json:"data"`
	Results    int         `json:"results,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	URL        string      `json:"url,omitempty"`
}
