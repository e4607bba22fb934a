package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// Snapshot is an immutable view of the cart. Mutations on the Store never
// touch a snapshot that has already been handed out.
type Snapshot struct {
	items []domain.CartLineItem
	count int
	total decimal.Decimal
}

func newSnapshot(items []domain.CartLineItem) Snapshot {
	s := Snapshot{items: items, total: decimal.Zero}
	for _, item := range items {
		s.count += item.Quantity
		s.total = s.total.Add(item.LineTotal())
	}
	return s
}

// Items returns a copy of the line items in insertion order.
func (s Snapshot) Items() []domain.CartLineItem {
	return slices.Clone(s.items)
}

func (s Snapshot) Len() int { return len(s.items) }

func (s Snapshot) IsEmpty() bool { return len(s.items) == 0 }

// Count is the sum of quantities over all lines.
func (s Snapshot) Count() int { return s.count }

func (s Snapshot) Total() decimal.Decimal { return s.total }

func (s Snapshot) Contains(productID string) bool {
	return s.index(productID) >= 0
}

// Quantity returns zero for products that are not in the cart.
func (s Snapshot) Quantity(productID string) int {
	if i := s.index(productID); i >= 0 {
		return s.items[i].Quantity
	}
	return 0
}

func (s Snapshot) index(productID string) int {
	return slices.IndexFunc(s.items, func(item domain.CartLineItem) bool {
		return item.Product.ID == productID
	})
}

type Store struct {
	mu          sync.RWMutex
	current     Snapshot
	subscribers map[int]func(Snapshot)
	nextID      int
}

func NewStore() *Store {
	return &Store{
		current:     newSnapshot(nil),
		subscribers: make(map[int]func(Snapshot)),
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Items is shorthand for Snapshot().Items().
func (s *Store) Items() []domain.CartLineItem {
	return s.Snapshot().Items()
}

// Subscribe registers fn for every new snapshot. The returned func removes it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// AddOne adds a single unit of product.
func (s *Store) AddOne(product domain.Product) {
	s.Add(product, 1)
}

// Add merges quantity into the existing line for product, or appends a new line.
func (s *Store) Add(product domain.Product, quantity int) {
	if quantity <= 0 {
		return
	}
	s.update(func(items []domain.CartLineItem) []domain.CartLineItem {
		for i, item := range items {
			if item.Product.ID == product.ID {
				next := slices.Clone(items)
				next[i].Quantity = item.Quantity + quantity
				return next
			}
		}
		return append(slices.Clone(items), domain.CartLineItem{Product: product, Quantity: quantity})
	})
}

func (s *Store) Remove(productID string) {
	s.update(func(items []domain.CartLineItem) []domain.CartLineItem {
		return slices.DeleteFunc(slices.Clone(items), func(item domain.CartLineItem) bool {
			return item.Product.ID == productID
		})
	})
}

// SetQuantity replaces the quantity of a line; quantity <= 0 removes it.
func (s *Store) SetQuantity(productID string, quantity int) {
	if quantity <= 0 {
		s.Remove(productID)
		return
	}
	s.update(func(items []domain.CartLineItem) []domain.CartLineItem {
		next := slices.Clone(items)
		for i := range next {
			if next[i].Product.ID == productID {
				next[i].Quantity = quantity
			}
		}
		return next
	})
}

func (s *Store) Clear() {
	s.update(func([]domain.CartLineItem) []domain.CartLineItem { return nil })
}

func (s *Store) update(mutate func([]domain.CartLineItem) []domain.CartLineItem) {
	s.mu.Lock()
	s.current = newSnapshot(mutate(s.current.items))
	snap := s.current
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
