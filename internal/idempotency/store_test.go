package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tradepost/marketcore/internal/awstest"
)

func newTestStore() (*Store, *awstest.DynamoDB) {
	db := awstest.NewDynamoDB(map[string]string{"idempotency": "idempotency_key"})
	return NewStore(db, "idempotency"), db
}

func seedInProgress(db *awstest.DynamoDB, key, orderID string) {
	now := time.Now().UTC().Format(time.RFC3339)
	db.Seed("idempotency", key, map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
		"status":          &types.AttributeValueMemberS{Value: StatusInProgress},
		"order_id":        &types.AttributeValueMemberS{Value: orderID},
		"created_at":      &types.AttributeValueMemberS{Value: now},
		"updated_at":      &types.AttributeValueMemberS{Value: now},
	})
}

func TestGet_MissingKey(t *testing.T) {
	s, _ := newTestStore()

	rec, err := s.Get(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestGet_ReadsPlacementRecord(t *testing.T) {
	s, db := newTestStore()
	seedInProgress(db, "key-1", "order-123")

	rec, err := s.Get(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("status = %q, want %q", rec.Status, StatusInProgress)
	}
	if rec.OrderID != "order-123" {
		t.Fatalf("order_id = %q, want order-123", rec.OrderID)
	}
}

func TestMarkDone_StoresReplayResponse(t *testing.T) {
	s, db := newTestStore()
	seedInProgress(db, "key-1", "order-123")

	ctx := context.Background()
	if err := s.MarkDone(ctx, "key-1", `{"order_id":"order-123"}`, http.StatusCreated); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	rec, err := s.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec.Status != StatusDone {
		t.Fatalf("status = %q, want %q", rec.Status, StatusDone)
	}
	if rec.ResponseBody != `{"order_id":"order-123"}` {
		t.Fatalf("response_body = %q", rec.ResponseBody)
	}
	if rec.ResponseStatus != http.StatusCreated {
		t.Fatalf("response_status = %d, want %d", rec.ResponseStatus, http.StatusCreated)
	}
}
