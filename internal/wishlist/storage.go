package wishlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "ecommerce_wishlist"

// Storage is a durable slot holding the serialized wishlist. Changes fires
// when another client rewrites the slot.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Changes(ctx context.Context) <-chan struct{}
}

// RedisStorage keeps the wishlist under a single key and announces every
// write on a pub/sub channel so other clients can reload.
type RedisStorage struct {
	client   *redis.Client
	key      string
	clientID string
	logger   *slog.Logger
}

func NewRedisStorage(client *redis.Client, key string, logger *slog.Logger) *RedisStorage {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStorage{
		client:   client,
		key:      key,
		clientID: uuid.New().String(),
		logger:   logger,
	}
}

func (r *RedisStorage) channel() string {
	return r.key + ":changes"
}

func (r *RedisStorage) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStorage) Save(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(), r.clientID).Err(); err != nil {
		r.logger.Warn("failed to announce wishlist change", "error", err, "key", r.key)
	}
	return nil
}

// Changes subscribes to writes made by other clients. The channel is closed
// when ctx is done.
func (r *RedisStorage) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sub := r.client.Subscribe(ctx, r.channel())

	// wait for the subscription to be confirmed so no write is missed
	if _, err := sub.Receive(ctx); err != nil {
		r.logger.Error("failed to subscribe to wishlist changes", "error", err, "key", r.key)
		_ = sub.Close()
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if msg.Payload == r.clientID {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out
}

// MemoryStorage is a process-local Storage. Handles created with Share see
// each other's writes as changes.
type MemoryStorage struct {
	shared *memorySlot
}

type memorySlot struct {
	mu       sync.Mutex
	data     []byte
	watchers map[*MemoryStorage][]chan struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{shared: &memorySlot{watchers: make(map[*MemoryStorage][]chan struct{})}}
}

// Share returns another handle on the same slot.
func (m *MemoryStorage) Share() *MemoryStorage {
	return &MemoryStorage{shared: m.shared}
}

func (m *MemoryStorage) Load(context.Context) ([]byte, error) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	return append([]byte(nil), m.shared.data...), nil
}

func (m *MemoryStorage) Save(_ context.Context, data []byte) error {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	m.shared.data = append([]byte(nil), data...)
	for owner, chans := range m.shared.watchers {
		if owner == m {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

func (m *MemoryStorage) Changes(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	m.shared.mu.Lock()
	m.shared.watchers[m] = append(m.shared.watchers[m], ch)
	m.shared.mu.Unlock()

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				m.shared.mu.Lock()
				delete(m.shared.watchers, m)
				m.shared.mu.Unlock()
				return
			case <-ch:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
