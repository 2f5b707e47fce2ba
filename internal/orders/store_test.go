package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tradepost/marketcore/internal/awstest"
)

func newTestStore() (*Store, *awstest.DynamoDB) {
	db := awstest.NewDynamoDB(map[string]string{
		"orders":      "order_id",
		"idempotency": "idempotency_key",
	})
	s := NewStore(db, "orders")
	// deterministic, strictly increasing clock so ordering assertions hold
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.nowFunc = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s, db
}

func newOrder(id, requester string) Order {
	return Order{
		OrderID:     id,
		RequesterID: requester,
		Item:        "keys",
		Kind:        "instant",
		Quantity:    1,
		Price:       0.5,
		Status:      StatusPendingPayment,
	}
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Create(ctx, newOrder("ord-1", "u1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected order, got nil")
	}
	if got.Status != StatusPendingPayment || got.Paid {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}

	// duplicate ids must be rejected
	if err := s.Create(ctx, newOrder("ord-1", "u1")); err == nil {
		t.Fatal("expected error creating duplicate order, got nil")
	}
}

func TestGet_Missing(t *testing.T) {
	s, _ := newTestStore()

	got, err := s.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing order, got %+v", got)
	}
}

func TestCreateWithIdempotencyTransaction_Duplicate(t *testing.T) {
	s, db := newTestStore()
	ctx := context.Background()

	idemp := map[string]string{"idempotency_key": "key-1", "status": "IN_PROGRESS"}
	if err := s.CreateWithIdempotencyTransaction(ctx, "idempotency", idemp, newOrder("ord-1", "u1"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.Item("idempotency", "key-1") == nil {
		t.Fatal("expected idempotency record to be written")
	}
	if db.Item("orders", "ord-1") == nil {
		t.Fatal("expected order to be written")
	}

	// replay with the same key: neither write may land
	err := s.CreateWithIdempotencyTransaction(ctx, "idempotency", idemp, newOrder("ord-2", "u1"), time.Hour)
	if err == nil {
		t.Fatal("expected transaction to be canceled on duplicate key, got nil")
	}
	if db.Item("orders", "ord-2") != nil {
		t.Fatal("duplicate placement must not create a second order")
	}
}

func TestMarkPaid(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Create(ctx, newOrder("ord-1", "u1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.MarkPaid(ctx, "ord-1", StatusPendingPayment, StatusPaid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusPaid || !got.Paid {
		t.Fatalf("unexpected state after MarkPaid: %+v", got)
	}

	// paying twice must fail the guard
	if err := s.MarkPaid(ctx, "ord-1", StatusPaid, StatusPaid); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
}

func TestMarkPaid_WrongStatus(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Create(ctx, newOrder("ord-1", "u1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := s.MarkPaid(ctx, "ord-1", StatusAccepted, StatusAccepted)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
}

func TestAcceptWithPrice(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	o := newOrder("ord-1", "u1")
	o.Kind = "custom"
	o.Price = 0
	if err := s.Create(ctx, o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.AcceptWithPrice(ctx, "ord-1", StatusPendingPayment, 12.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusAccepted || got.Price != 12.5 {
		t.Fatalf("unexpected state after accept: %+v", got)
	}

	// accepting again from the old status must fail
	if err := s.AcceptWithPrice(ctx, "ord-1", StatusPendingPayment, 15); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
}

func TestSetDeliveryContent(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Create(ctx, newOrder("ord-1", "u1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetDeliveryContent(ctx, "ord-1", "Item x 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Delivered || got.DeliveryContent != "Item x 1" {
		t.Fatalf("unexpected state after delivery: %+v", got)
	}

	if err := s.SetDeliveryContent(ctx, "ghost", "x"); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for missing order, got %v", err)
	}
}

func TestDeleteIfStatusIn(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Create(ctx, newOrder("ord-1", "u1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.MarkPaid(ctx, "ord-1", StatusPendingPayment, StatusPaid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// a paid order is not deletable under the pending-only guard
	err := s.DeleteIfStatusIn(ctx, "ord-1", StatusPendingPayment)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	// widening the guard to include PAID removes it
	if err := s.DeleteIfStatusIn(ctx, "ord-1", StatusPendingPayment, StatusPaid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected order to be deleted, got %+v", got)
	}
}

func TestUnpaidByRequester_OldestFirst(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for _, id := range []string{"ord-1", "ord-2", "ord-3"} {
		if err := s.Create(ctx, newOrder(id, "u1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := s.Create(ctx, newOrder("ord-other", "u2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.MarkPaid(ctx, "ord-1", StatusPendingPayment, StatusPaid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unpaid, err := s.UnpaidByRequester(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unpaid) != 2 {
		t.Fatalf("expected 2 unpaid orders, got %d", len(unpaid))
	}
	if unpaid[0].OrderID != "ord-2" || unpaid[1].OrderID != "ord-3" {
		t.Fatalf("expected oldest-first [ord-2 ord-3], got [%s %s]", unpaid[0].OrderID, unpaid[1].OrderID)
	}
}

func TestCountCompletedByRequester(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for _, id := range []string{"ord-1", "ord-2", "ord-3"} {
		if err := s.Create(ctx, newOrder(id, "u1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for _, id := range []string{"ord-1", "ord-3"} {
		if err := s.MarkPaid(ctx, id, StatusPendingPayment, StatusPaid); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	n, err := s.CountCompletedByRequester(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 completed orders, got %d", n)
	}
}
