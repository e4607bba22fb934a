package checkout

import (
	"maps"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type Phase int

const (
	PhaseCollectingAddress Phase = iota
	PhaseSelectingPayment
	PhaseProcessing
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseCollectingAddress:
		return "collecting_address"
	case PhaseSelectingPayment:
		return "selecting_payment"
	case PhaseProcessing:
		return "processing"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a copy of the orchestrator's observable state.
type State struct {
	Phase         Phase
	Address       domain.ShippingAddress
	PaymentMethod domain.PaymentMethodType
	// CurrentOrder is the last order created in this session.
	CurrentOrder *domain.Order
	Success      string
	Error        string
	FieldErrors  map[string]string
}

// Processing reports whether a submission is running.
func (s State) Processing() bool {
	return s.Phase == PhaseProcessing
}

func (s State) clone() State {
	c := s
	if s.CurrentOrder != nil {
		order := *s.CurrentOrder
		c.CurrentOrder = &order
	}
	c.FieldErrors = maps.Clone(s.FieldErrors)
	return c
}
