package views

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/orders"
	"github.com/joao-fontenele/storefront-checkout/internal/platform"
)

const (
	OrdersPath = "/orders"
	HomePath   = "/"

	MsgOrderNotFound = "Order not found"
	MsgDetailFailed  = "Failed to load order details. Please try again."
)

type OrderFetcher interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
}

type Detail struct {
	fetcher OrderFetcher
	nav     platform.Navigator
	logger  *slog.Logger

	Order *domain.Order
	Error string
}

func NewDetail(fetcher OrderFetcher, nav platform.Navigator, logger *slog.Logger) *Detail {
	return &Detail{fetcher: fetcher, nav: nav, logger: logger}
}

// Load fetches the order by id. Without an id it goes back to the order list.
func (d *Detail) Load(ctx context.Context, id string) error {
	if id == "" {
		d.nav.Navigate(OrdersPath, nil)
		return nil
	}

	d.Error = ""
	d.Order = nil

	order, err := d.fetcher.GetOrder(ctx, id)
	switch {
	case errors.Is(err, orders.ErrEmptyResponse):
		d.Error = MsgOrderNotFound
		return nil
	case err != nil:
		d.logger.Error("failed to load order details", "error", err, "order_id", id)
		d.Error = MsgDetailFailed
		return fmt.Errorf("load order %s: %w", id, err)
	}

	d.Order = order
	return nil
}

// Back returns to the order list.
func (d *Detail) Back() {
	d.nav.Navigate(OrdersPath, nil)
}

func (d *Detail) Render(w io.Writer) error {
	return render(w, "detail", d)
}
