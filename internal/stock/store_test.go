package stock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tradepost/marketcore/internal/awstest"
)

func newTestStore() (*Store, *awstest.DynamoDB) {
	db := awstest.NewDynamoDB(map[string]string{
		"stock":  "name",
		"hidden": "name",
	})
	return NewStore(db, "stock", "hidden"), db
}

func TestUpsertItem_CreateAndGet(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.UpsertItem(ctx, "keys", 0.5, KindInstant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	it, err := s.GetItem(ctx, "keys")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Name != "keys" || it.Price != 0.5 || it.Kind != KindInstant {
		t.Fatalf("unexpected item: %+v", it)
	}
	if it.Bounded() {
		t.Fatal("expected fresh item to be unbounded")
	}
}

func TestUpsertItem_PreservesQuantity(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.UpsertItem(ctx, "keys", 0.5, KindInstant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AdjustQuantity(ctx, "keys", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// re-upserting with a new price must not reset the stored quantity
	if err := s.UpsertItem(ctx, "keys", 0.75, KindInstant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	it, err := s.GetItem(ctx, "keys")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Price != 0.75 {
		t.Fatalf("expected price 0.75, got %g", it.Price)
	}
	if !it.Bounded() || *it.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %+v", it.Quantity)
	}
}

func TestUpsertItem_InvalidKind(t *testing.T) {
	s, _ := newTestStore()

	if err := s.UpsertItem(context.Background(), "keys", 0.5, "voucher"); err == nil {
		t.Fatal("expected error for invalid kind, got nil")
	}
}

func TestAdjustQuantity_InsufficientStock(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.UpsertItem(ctx, "keys", 0.5, KindInstant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AdjustQuantity(ctx, "keys", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := s.AdjustQuantity(ctx, "keys", -3)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// the failed decrement must not have touched the stored quantity
	it, err := s.GetItem(ctx, "keys")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *it.Quantity != 2 {
		t.Fatalf("expected quantity 2 after failed decrement, got %d", *it.Quantity)
	}
}

func TestAdjustQuantity_UnboundedDecrementIsNoop(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.UpsertItem(ctx, "vip-role", 10, KindInstant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AdjustQuantity(ctx, "vip-role", -5); err != nil {
		t.Fatalf("expected decrement on unbounded item to succeed, got %v", err)
	}

	it, err := s.GetItem(ctx, "vip-role")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Bounded() {
		t.Fatal("expected item to stay unbounded")
	}
}

func TestAdjustQuantity_MissingItem(t *testing.T) {
	s, _ := newTestStore()

	err := s.AdjustQuantity(context.Background(), "ghost", -1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Concurrent decrements past zero must fail rather than drive the
// quantity negative, and the successes must account for exactly the
// stocked amount.
func TestAdjustQuantity_ConcurrentDecrements(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	const stocked = 5
	const buyers = 20

	if err := s.UpsertItem(ctx, "keys", 0.5, KindInstant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AdjustQuantity(ctx, "keys", stocked); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.AdjustQuantity(ctx, "keys", -1)
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != stocked {
		t.Fatalf("expected exactly %d successful decrements, got %d", stocked, successes)
	}

	it, err := s.GetItem(ctx, "keys")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *it.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", *it.Quantity)
	}
}

func TestSetPrice(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.SetPrice(ctx, "ghost", 1.0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.UpsertItem(ctx, "keys", 0.5, KindInstant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetPrice(ctx, "keys", 1.25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	it, err := s.GetItem(ctx, "keys")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Price != 1.25 {
		t.Fatalf("expected price 1.25, got %g", it.Price)
	}
}

func TestZeroQuantity(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.UpsertItem(ctx, "keys", 0.5, KindInstant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AdjustQuantity(ctx, "keys", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.ZeroQuantity(ctx, "keys"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	it, err := s.GetItem(ctx, "keys")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !it.Bounded() || *it.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %+v", it.Quantity)
	}

	// decrementing a zeroed item must fail
	if err := s.AdjustQuantity(ctx, "keys", -1); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestListItems_Sorted(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := s.UpsertItem(ctx, name, 1, KindInstant); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, err := s.ListItems(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if items[i].Name != want {
			t.Fatalf("expected item %d to be %q, got %q", i, want, items[i].Name)
		}
	}
}
