package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

var ErrMissingProductID = errors.New("product has no id")

// Service is the user's wishlist, persisted to a Storage after every change.
type Service struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	items []domain.WishlistItem
}

func NewService(ctx context.Context, storage Storage, logger *slog.Logger) *Service {
	s := &Service{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
	s.items = s.load(ctx)
	return s
}

// Add stores product unless it is already on the list. It reports whether
// the list changed.
func (s *Service) Add(ctx context.Context, product domain.Product) (bool, error) {
	if product.ID == "" {
		return false, ErrMissingProductID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.items, product.ID) >= 0 {
		return false, nil
	}

	next := append(slices.Clone(s.items), domain.WishlistItem{
		ID:      product.ID,
		Product: product,
		AddedAt: s.now().UTC(),
	})
	if err := s.persist(ctx, next); err != nil {
		return false, err
	}

	s.logger.Info("product added to wishlist", "product_id", product.ID)
	return true, nil
}

func (s *Service) Remove(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.DeleteFunc(slices.Clone(s.items), func(item domain.WishlistItem) bool {
		return item.ID == productID
	})
	return s.persist(ctx, next)
}

// Toggle adds the product when absent and removes it otherwise. It reports
// whether the product is on the list afterwards.
func (s *Service) Toggle(ctx context.Context, product domain.Product) (bool, error) {
	if product.ID == "" {
		return false, ErrMissingProductID
	}
	if s.Contains(product.ID) {
		return false, s.Remove(ctx, product.ID)
	}
	if _, err := s.Add(ctx, product); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(ctx, []domain.WishlistItem{})
}

func (s *Service) Contains(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.items, productID) >= 0
}

func (s *Service) Get(productID string) (domain.WishlistItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.items, productID); i >= 0 {
		return s.items[i], true
	}
	return domain.WishlistItem{}, false
}

func (s *Service) Items() []domain.WishlistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Service) IsEmpty() bool {
	return s.Count() == 0
}

// Reload replaces the in-memory list with what is in storage.
func (s *Service) Reload(ctx context.Context) {
	items := s.load(ctx)

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// Watch reloads the list whenever another client changes it, until ctx is
// done. onChange, if set, runs after each reload.
func (s *Service) Watch(ctx context.Context, onChange func([]domain.WishlistItem)) {
	for range s.storage.Changes(ctx) {
		s.Reload(ctx)
		s.logger.Debug("wishlist reloaded after external change", "count", s.Count())
		if onChange != nil {
			onChange(s.Items())
		}
	}
}

// load never fails: unreadable data yields an empty list.
func (s *Service) load(ctx context.Context) []domain.WishlistItem {
	data, err := s.storage.Load(ctx)
	if err != nil {
		s.logger.Error("failed to load wishlist", "error", err)
		return []domain.WishlistItem{}
	}
	if len(data) == 0 {
		return []domain.WishlistItem{}
	}

	var items []domain.WishlistItem
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Error("failed to decode wishlist", "error", err)
		return []domain.WishlistItem{}
	}
	return items
}

// persist must be called with mu held.
func (s *Service) persist(ctx context.Context, items []domain.WishlistItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal wishlist: %w", err)
	}
	if err := s.storage.Save(ctx, data); err != nil {
		return fmt.Errorf("save wishlist: %w", err)
	}
	s.items = items
	return nil
}

func indexOf(items []domain.WishlistItem, productID string) int {
	return slices.IndexFunc(items, func(item domain.WishlistItem) bool {
		return item.ID == productID
	})
}
