package sandbox

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// MemoryStore keeps orders and intents in process. It backs the sandbox
// when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	orders  []*domain.Order
	intents map[string]*PaymentIntent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{intents: make(map[string]*PaymentIntent)}
}

func (m *MemoryStore) Create(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order.ID = uuid.New().String()
	order.UpdatedAt = order.CreatedAt
	m.orders = append(m.orders, cloneOrder(order))
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o := m.find(id); o != nil {
		return cloneOrder(o), nil
	}
	return nil, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, page, limit int) ([]domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var mine []domain.Order
	for _, o := range slices.Backward(m.orders) {
		if o.User == userID {
			mine = append(mine, *cloneOrder(o))
		}
	}

	start := min((page-1)*limit, len(mine))
	end := min(start+limit, len(mine))
	return slices.Clip(mine[start:end]), len(mine), nil
}

func (m *MemoryStore) MarkPaid(_ context.Context, id string) (*domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.find(id)
	if o == nil {
		return nil, false, nil
	}
	if o.IsPaid {
		return cloneOrder(o), false, nil
	}

	now := time.Now().UTC()
	o.IsPaid, o.PaidAt, o.Status, o.UpdatedAt = true, &now, domain.OrderStatusPaid, now
	return cloneOrder(o), true, nil
}

func (m *MemoryStore) MarkDelivered(_ context.Context, id string) (*domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.find(id)
	if o == nil {
		return nil, false, nil
	}
	if !o.IsPaid {
		return cloneOrder(o), false, ErrNotPaid
	}
	if o.IsDelivered {
		return cloneOrder(o), false, nil
	}

	now := time.Now().UTC()
	o.IsDelivered, o.DeliveredAt, o.Status, o.UpdatedAt = true, &now, domain.OrderStatusDelivered, now
	return cloneOrder(o), true, nil
}

func (m *MemoryStore) CreateIntent(_ context.Context, intent *PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *intent
	m.intents[intent.ID] = &stored
	return nil
}

func (m *MemoryStore) GetIntent(_ context.Context, id string) (*PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if intent, ok := m.intents[id]; ok {
		found := *intent
		return &found, nil
	}
	return nil, nil
}

func (m *MemoryStore) UpdateIntentStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if intent, ok := m.intents[id]; ok {
		intent.Status = status
	}
	return nil
}

func (m *MemoryStore) find(id string) *domain.Order {
	for _, o := range m.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.CartItems = slices.Clone(o.CartItems)
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		cp.ShippingAddress = &addr
	}
	return &cp
}
