package wishlist

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func product(id string) domain.Product {
	return domain.Product{ID: id, Title: "Product " + id, Price: decimal.NewFromInt(10)}
}

func newRedisStorage(t *testing.T) (*miniredis.Miniredis, *RedisStorage) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStorage(client, "", discardLogger())
}

func TestService_AddRemove(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ctx, NewMemoryStorage(), discardLogger())

	if !svc.IsEmpty() {
		t.Fatal("expected empty wishlist")
	}

	added, err := svc.Add(ctx, product("p1"))
	if err != nil || !added {
		t.Fatalf("expected p1 added, got added=%v err=%v", added, err)
	}

	added, err = svc.Add(ctx, product("p1"))
	if err != nil || added {
		t.Fatalf("expected duplicate to be ignored, got added=%v err=%v", added, err)
	}
	if svc.Count() != 1 {
		t.Errorf("expected 1 item, got %d", svc.Count())
	}

	if _, err := svc.Add(ctx, domain.Product{}); err != ErrMissingProductID {
		t.Errorf("expected ErrMissingProductID, got %v", err)
	}

	if err := svc.Remove(ctx, "p1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if svc.Contains("p1") {
		t.Error("expected p1 removed")
	}

	if err := svc.Remove(ctx, "missing"); err != nil {
		t.Errorf("removing an absent product should not fail: %v", err)
	}
}

func TestService_Toggle(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ctx, NewMemoryStorage(), discardLogger())

	on, err := svc.Toggle(ctx, product("p1"))
	if err != nil || !on {
		t.Fatalf("expected toggle on, got %v %v", on, err)
	}

	on, err = svc.Toggle(ctx, product("p1"))
	if err != nil || on {
		t.Fatalf("expected toggle off, got %v %v", on, err)
	}
	if !svc.IsEmpty() {
		t.Error("expected empty wishlist")
	}
}

func TestService_Get(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ctx, NewMemoryStorage(), discardLogger())
	fixed := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if _, err := svc.Add(ctx, product("p1")); err != nil {
		t.Fatal(err)
	}

	item, ok := svc.Get("p1")
	if !ok {
		t.Fatal("expected item")
	}
	if !item.AddedAt.Equal(fixed) || item.Product.Title != "Product p1" {
		t.Errorf("unexpected item %+v", item)
	}

	if _, ok := svc.Get("p2"); ok {
		t.Error("expected no item for p2")
	}
}

func TestService_Persistence(t *testing.T) {
	ctx := context.Background()
	mr, storage := newRedisStorage(t)

	svc := NewService(ctx, storage, discardLogger())
	if _, err := svc.Add(ctx, product("p1")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Add(ctx, product("p2")); err != nil {
		t.Fatal(err)
	}

	raw, err := mr.Get(DefaultKey)
	if err != nil {
		t.Fatalf("expected key %q in redis: %v", DefaultKey, err)
	}
	if raw == "" || raw[0] != '[' {
		t.Errorf("expected a JSON array, got %q", raw)
	}

	reopened := NewService(ctx, storage, discardLogger())
	if reopened.Count() != 2 || !reopened.Contains("p2") {
		t.Errorf("expected items to survive, got %+v", reopened.Items())
	}

	if err := reopened.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := mr.Get(DefaultKey); got != "[]" {
		t.Errorf("expected empty list stored, got %q", got)
	}
}

func TestService_CorruptData(t *testing.T) {
	ctx := context.Background()
	mr, storage := newRedisStorage(t)
	if err := mr.Set(DefaultKey, "{not json"); err != nil {
		t.Fatal(err)
	}

	svc := NewService(ctx, storage, discardLogger())
	if !svc.IsEmpty() {
		t.Errorf("expected corrupt data to load as empty, got %+v", svc.Items())
	}

	if _, err := svc.Add(ctx, product("p1")); err != nil {
		t.Fatalf("add after corrupt load failed: %v", err)
	}
	if svc.Count() != 1 {
		t.Errorf("expected 1 item, got %d", svc.Count())
	}
}

func TestService_Watch(t *testing.T) {
	t.Run("redis pub/sub", func(t *testing.T) {
		mr := miniredis.RunT(t)
		newStorage := func() *RedisStorage {
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStorage(client, "", discardLogger())
		}

		watchReloads(t, newStorage(), newStorage())
	})

	t.Run("shared memory", func(t *testing.T) {
		first := NewMemoryStorage()
		watchReloads(t, first, first.Share())
	})
}

func watchReloads(t *testing.T, watched, writer Storage) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := NewService(ctx, watched, discardLogger())
	other := NewService(ctx, writer, discardLogger())

	reloaded := make(chan []domain.WishlistItem, 4)
	changes := watched.Changes(ctx)
	go func() {
		for range changes {
			watcher.Reload(ctx)
			reloaded <- watcher.Items()
		}
	}()

	if _, err := other.Add(ctx, product("p9")); err != nil {
		t.Fatal(err)
	}

	select {
	case items := <-reloaded:
		if len(items) != 1 || items[0].ID != "p9" {
			t.Errorf("unexpected items after reload %+v", items)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestService_WatchIgnoresOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage := NewMemoryStorage()
	svc := NewService(ctx, storage, discardLogger())

	notified := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Watch(ctx, func([]domain.WishlistItem) { notified <- struct{}{} })
	}()

	// give Watch time to register before writing
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.Add(ctx, product("p1")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-notified:
		t.Error("own write should not trigger a reload")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
