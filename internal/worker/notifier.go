package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/messaging"
)

// Receipt is what the shopper is told once a checkout settles.
type Receipt struct {
	CheckoutID string
	OrderID    string
	Subject    string
	Body       string
}

type Sender interface {
	Send(ctx context.Context, receipt Receipt) error
}

// LogSender writes receipts to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, receipt Receipt) error {
	s.logger.Info("receipt sent", "order_id", receipt.OrderID, "checkout_id", receipt.CheckoutID, "subject", receipt.Subject)
	return nil
}

// CheckoutNotifier turns storefront checkout events into shopper receipts.
type CheckoutNotifier struct {
	sender Sender
	logger *slog.Logger
}

func NewCheckoutNotifier(sender Sender, logger *slog.Logger) *CheckoutNotifier {
	return &CheckoutNotifier{sender: sender, logger: logger}
}

func (n *CheckoutNotifier) Handle(ctx context.Context, key string, payload []byte) error {
	var event domain.CheckoutEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal checkout event %s: %w: %w", key, messaging.ErrSkip, err)
	}

	receipt, ok := receiptFor(event)
	if !ok {
		n.logger.Debug("no receipt for checkout event", "checkout_id", event.CheckoutID, "type", event.Type)
		return nil
	}

	if err := n.sender.Send(ctx, receipt); err != nil {
		n.logger.Error("failed to send receipt", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send receipt for %s: %w", event.OrderID, err)
	}
	return nil
}

func receiptFor(event domain.CheckoutEvent) (Receipt, bool) {
	receipt := Receipt{CheckoutID: event.CheckoutID, OrderID: event.OrderID}
	total := event.Total.StringFixed(2)

	switch event.Type {
	case domain.CheckoutPaymentSucceeded:
		receipt.Subject = "Order " + event.OrderID + " confirmed"
		receipt.Body = fmt.Sprintf("We received your %s payment of $%s.", event.PaymentMethod, total)
	case domain.CheckoutPaymentFailed:
		if event.OrderID == "" {
			return Receipt{}, false
		}
		receipt.Subject = "Order " + event.OrderID + " needs attention"
		receipt.Body = "Your payment could not be completed: " + event.Error
	default:
		return Receipt{}, false
	}
	return receipt, true
}
