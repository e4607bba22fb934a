package views

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/orders"
)

const MsgHistoryFailed = "Failed to load orders. Please try again."

type OrderLister interface {
	ListUserOrders(ctx context.Context, page int) (*orders.OrderPage, error)
}

// History is the signed-in user's order list.
type History struct {
	lister OrderLister
	logger *slog.Logger

	Orders      []domain.Order
	CurrentPage int
	TotalPages  int
	TotalOrders int
	Error       string
}

func NewHistory(lister OrderLister, logger *slog.Logger) *History {
	return &History{
		lister:      lister,
		logger:      logger,
		CurrentPage: 1,
		TotalPages:  1,
	}
}

func (h *History) Load(ctx context.Context, page int) error {
	h.Error = ""

	result, err := h.lister.ListUserOrders(ctx, page)
	if err != nil {
		h.logger.Error("failed to load orders", "error", err, "page", page)
		h.Error = MsgHistoryFailed
		return fmt.Errorf("load order history: %w", err)
	}

	h.Orders = result.Orders
	if h.Orders == nil {
		h.Orders = []domain.Order{}
	}
	h.TotalOrders = result.Results
	if p := result.Pagination; p != nil {
		h.CurrentPage = p.CurrentPage
		h.TotalPages = p.NumberOfPages
	}

	h.logger.Info("orders loaded", "count", len(h.Orders), "page", h.CurrentPage)
	return nil
}

// GoToPage ignores pages outside the known range.
func (h *History) GoToPage(ctx context.Context, page int) error {
	if page < 1 || page > h.TotalPages {
		return nil
	}
	h.CurrentPage = page
	return h.Load(ctx, page)
}

func (h *History) Refresh(ctx context.Context) error {
	return h.Load(ctx, h.CurrentPage)
}

func (h *History) PageNumbers() []int {
	return PageNumbers(h.CurrentPage, h.TotalPages)
}

func (h *History) Render(w io.Writer) error {
	return render(w, "history", h)
}
