package checkout

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrOrderCreation      = errors.New("order creation failed")
	ErrPaymentProcessing  = errors.New("payment processing failed")
	ErrSessionURL         = errors.New("checkout session url unavailable")
	ErrPopupBlocked       = errors.New("payment window was blocked")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrClosed             = errors.New("checkout is closed")

	errAwaitingPayment = errors.New("order is still awaiting payment")
)

// User-facing messages.
const (
	MsgInvalidForm       = "Please fill in all required fields and ensure your cart is not empty."
	MsgOrderCreation     = "Failed to create order. Please try again."
	MsgPaymentProcessing = "Payment processing failed. Please try again."
	MsgSessionURL        = "Failed to get payment URL. Please try again."
	MsgPopupBlocked      = "Please allow popups for this site to complete payment"
	MsgCashSuccess       = "Order placed successfully! You will pay when your order is delivered."
	MsgRedirecting       = "Redirecting to payment page..."
)

// ValidationError maps a form field to its first failed constraint.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return fmt.Sprintf("invalid checkout form: %s", strings.Join(msgs, ", "))
}

// UserMessage maps an orchestrator error to the text shown to the user.
func UserMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr), errors.Is(err, ErrEmptyCart):
		return MsgInvalidForm
	case errors.Is(err, ErrOrderCreation):
		return MsgOrderCreation
	case errors.Is(err, ErrSessionURL):
		return MsgSessionURL
	case errors.Is(err, ErrPopupBlocked):
		return MsgPopupBlocked
	default:
		return MsgPaymentProcessing
	}
}
