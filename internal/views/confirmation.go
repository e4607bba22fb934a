package views

import (
	"context"
	"io"
	"log/slog"
	"net/url"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/platform"
)

type CurrentOrderSource interface {
	CurrentOrder() *domain.Order
}

// Confirmation renders the outcome of a checkout. It trusts the API over
// the in-memory order whenever an order id is available.
type Confirmation struct {
	fetcher OrderFetcher
	current CurrentOrderSource
	nav     platform.Navigator
	logger  *slog.Logger

	OrderID string
	Order   *domain.Order
}

func NewConfirmation(fetcher OrderFetcher, current CurrentOrderSource, nav platform.Navigator, logger *slog.Logger) *Confirmation {
	return &Confirmation{fetcher: fetcher, current: current, nav: nav, logger: logger}
}

// Load reconciles the confirmation from the orderId query parameter, then
// from the current order. With neither it navigates home and reports false.
func (c *Confirmation) Load(ctx context.Context, query url.Values) bool {
	c.Order = nil
	c.OrderID = query.Get("orderId")

	var cached *domain.Order
	if c.current != nil {
		cached = c.current.CurrentOrder()
	}

	if c.OrderID == "" {
		if cached == nil {
			c.nav.Navigate(HomePath, nil)
			return false
		}
		c.OrderID = cached.ID
		c.Order = cached
		return true
	}

	order, err := c.fetcher.GetOrder(ctx, c.OrderID)
	if err != nil {
		c.logger.Error("failed to load confirmed order", "error", err, "order_id", c.OrderID)
		if cached != nil && cached.ID == c.OrderID {
			c.Order = cached
		}
		return true
	}

	c.Order = order
	return true
}

func (c *Confirmation) ContinueShopping() {
	c.nav.Navigate("/products", nil)
}

func (c *Confirmation) ViewOrders() {
	c.nav.Navigate(OrdersPath, nil)
}

func (c *Confirmation) Render(w io.Writer) error {
	return render(w, "confirmation", c)
}
