package cart

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

func product(id, price string) domain.Product {
	return domain.Product{ID: id, Title: "product " + id, Price: decimal.RequireFromString(price)}
}

func TestStore_Add(t *testing.T) {
	t.Run("merges quantities for the same product", func(t *testing.T) {
		store := NewStore()
		p := product("p1", "10.00")

		store.Add(p, 2)
		store.Add(p, 3)

		snap := store.Snapshot()
		if snap.Len() != 1 {
			t.Fatalf("expected 1 line item, got %d", snap.Len())
		}
		if snap.Quantity("p1") != 5 {
			t.Errorf("expected quantity 5, got %d", snap.Quantity("p1"))
		}
	})

	t.Run("AddOne adds a single unit", func(t *testing.T) {
		store := NewStore()
		store.AddOne(product("p1", "1.00"))
		store.AddOne(product("p1", "1.00"))

		if store.Snapshot().Quantity("p1") != 2 {
			t.Errorf("expected quantity 2, got %d", store.Snapshot().Quantity("p1"))
		}
	})

	t.Run("ignores non-positive quantities", func(t *testing.T) {
		store := NewStore()
		store.Add(product("p1", "1.00"), 0)
		store.Add(product("p1", "1.00"), -2)

		if !store.Snapshot().IsEmpty() {
			t.Errorf("expected empty cart, got %d lines", store.Snapshot().Len())
		}
	})

	t.Run("keeps insertion order", func(t *testing.T) {
		store := NewStore()
		store.Add(product("b", "1.00"), 1)
		store.Add(product("a", "1.00"), 1)
		store.Add(product("b", "1.00"), 1)

		items := store.Items()
		if items[0].Product.ID != "b" || items[1].Product.ID != "a" {
			t.Errorf("unexpected order: %s, %s", items[0].Product.ID, items[1].Product.ID)
		}
	})
}

func TestStore_SetQuantity(t *testing.T) {
	for _, qty := range []int{0, -1} {
		store := NewStore()
		store.Add(product("p1", "5.00"), 2)
		store.Add(product("p2", "5.00"), 1)

		store.SetQuantity("p1", qty)

		snap := store.Snapshot()
		if snap.Contains("p1") {
			t.Errorf("SetQuantity(%d): expected p1 to be removed", qty)
		}
		if !snap.Contains("p2") {
			t.Errorf("SetQuantity(%d): expected p2 to stay", qty)
		}
	}

	t.Run("replaces quantity", func(t *testing.T) {
		store := NewStore()
		store.Add(product("p1", "5.00"), 2)
		store.SetQuantity("p1", 7)

		if store.Snapshot().Quantity("p1") != 7 {
			t.Errorf("expected quantity 7, got %d", store.Snapshot().Quantity("p1"))
		}
	})

	t.Run("unknown product is a no-op", func(t *testing.T) {
		store := NewStore()
		store.Add(product("p1", "5.00"), 2)
		store.SetQuantity("missing", 4)

		if store.Snapshot().Len() != 1 || store.Snapshot().Quantity("missing") != 0 {
			t.Errorf("unexpected cart state: %+v", store.Items())
		}
	})
}

func TestStore_TotalsFollowEveryMutation(t *testing.T) {
	store := NewStore()
	a := product("a", "19.99")
	b := product("b", "0.35")
	c := product("c", "100")

	steps := []func(){
		func() { store.Add(a, 2) },
		func() { store.Add(b, 10) },
		func() { store.Add(c, 1) },
		func() { store.SetQuantity("a", 5) },
		func() { store.Remove("c") },
		func() { store.Add(a, 1) },
		func() { store.SetQuantity("b", 0) },
		func() { store.Add(c, 3) },
		func() { store.Clear() },
		func() { store.Add(b, 4) },
	}

	for i, step := range steps {
		step()

		snap := store.Snapshot()
		want := decimal.Zero
		count := 0
		for _, item := range snap.Items() {
			want = want.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			count += item.Quantity
		}
		if !snap.Total().Equal(want) {
			t.Fatalf("step %d: expected total %s, got %s", i, want, snap.Total())
		}
		if snap.Count() != count {
			t.Fatalf("step %d: expected count %d, got %d", i, count, snap.Count())
		}
	}
}

func TestStore_SnapshotsAreImmutable(t *testing.T) {
	store := NewStore()
	store.Add(product("p1", "2.00"), 1)
	before := store.Snapshot()

	store.Add(product("p1", "2.00"), 4)
	store.Add(product("p2", "2.00"), 1)

	if before.Quantity("p1") != 1 || before.Len() != 1 {
		t.Errorf("old snapshot changed: %+v", before.Items())
	}

	items := store.Items()
	items[0].Quantity = 99
	if store.Snapshot().Quantity("p1") != 5 {
		t.Errorf("mutating returned items leaked into the store")
	}
}

func TestStore_Subscribe(t *testing.T) {
	store := NewStore()

	var seen []int
	unsubscribe := store.Subscribe(func(s Snapshot) {
		seen = append(seen, s.Count())
	})

	store.Add(product("p1", "1.00"), 2)
	store.SetQuantity("p1", 3)
	unsubscribe()
	store.Clear()

	if len(seen) != 2 || seen[0] != 2 || seen[1] != 3 {
		t.Errorf("unexpected notifications: %v", seen)
	}
}
