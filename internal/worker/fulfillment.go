package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/messaging"
	"github.com/joao-fontenele/storefront-checkout/internal/orders"
)

type OrderDeliverer interface {
	MarkDelivered(ctx context.Context, id string) (*domain.Order, error)
}

// FulfillmentHandler delivers orders as soon as they are paid.
type FulfillmentHandler struct {
	orders OrderDeliverer
	logger *slog.Logger
}

func NewFulfillmentHandler(orders OrderDeliverer, logger *slog.Logger) *FulfillmentHandler {
	return &FulfillmentHandler{orders: orders, logger: logger}
}

// Handle processes one order.paid event. Events the API rejects outright are
// skipped; transient failures stop the consumer so the event is redelivered.
func (h *FulfillmentHandler) Handle(ctx context.Context, key string, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order event %s: %w: %w", key, messaging.ErrSkip, err)
	}
	if event.OrderID == "" {
		return fmt.Errorf("order event %s has no order id: %w", key, messaging.ErrSkip)
	}

	if event.Status != domain.OrderStatusPaid {
		h.logger.Debug("ignoring order event", "order_id", event.OrderID, "status", event.Status)
		return nil
	}

	h.logger.Info("processing paid order", "order_id", event.OrderID, "user_id", event.UserID, "items", len(event.Items))

	order, err := h.orders.MarkDelivered(ctx, event.OrderID)
	if err != nil {
		var apiErr *orders.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			h.logger.Warn("order cannot be delivered", "error", err, "order_id", event.OrderID)
			return fmt.Errorf("deliver order %s: %w: %w", event.OrderID, messaging.ErrSkip, err)
		}
		h.logger.Error("failed to deliver order", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("deliver order %s: %w", event.OrderID, err)
	}

	h.logger.Info("order delivered", "order_id", order.ID, "delivered_at", order.DeliveredAt)
	return nil
}
