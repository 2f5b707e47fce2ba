package incentives

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fixedCounter int

func (f fixedCounter) CountCompletedByRequester(ctx context.Context, requesterID string) (int, error) {
	return int(f), nil
}

func TestRewardStatus_Progress(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	// every 5 completed orders: 10% off, 3 uses
	if err := s.SetRewardTrigger(ctx, 5, 10, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name          string
		completed     int
		wantRemaining int
	}{
		{"no orders yet", 0, 5},
		{"one short", 4, 1},
		{"exact multiple", 5, 0},
		{"past first reward", 6, 4},
		{"second exact multiple", 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEngine(s, fixedCounter(tc.completed))
			st, err := e.RewardStatus(ctx, "u1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if st.Remaining != tc.wantRemaining {
				t.Fatalf("completed=%d: expected remaining %d, got %d", tc.completed, tc.wantRemaining, st.Remaining)
			}
			if st.CompletedOrders != tc.completed || st.OrdersRequired != 5 || st.Percent != 10 || st.Uses != 3 {
				t.Fatalf("unexpected status: %+v", st)
			}
		})
	}
}

func TestRewardStatus_NoTriggerConfigured(t *testing.T) {
	s, _ := newTestStore()
	e := NewEngine(s, fixedCounter(3))

	_, err := e.RewardStatus(context.Background(), "u1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRewardTrigger_RejectsNonPositiveOrders(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for _, n := range []int{0, -1} {
		if err := s.SetRewardTrigger(ctx, n, 10, 3); err == nil {
			t.Fatalf("expected error for ordersRequired=%d", n)
		}
	}
	if _, err := s.GetRewardTrigger(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected trigger must not be stored, got %v", err)
	}
}

// A zero-cadence trigger written outside the store guard must error instead
// of dividing by zero.
func TestRewardStatus_ZeroCadenceTrigger(t *testing.T) {
	s, db := newTestStore()
	db.Seed("rewards", rewardKey, map[string]types.AttributeValue{
		"trigger_id": &types.AttributeValueMemberS{Value: rewardKey},
		"orders":     &types.AttributeValueMemberN{Value: "0"},
		"percent":    &types.AttributeValueMemberN{Value: "10"},
		"uses":       &types.AttributeValueMemberN{Value: "3"},
	})

	e := NewEngine(s, fixedCounter(4))
	if _, err := e.RewardStatus(context.Background(), "u1"); err == nil {
		t.Fatal("expected error for zero-cadence trigger")
	}
}
