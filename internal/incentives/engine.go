package incentives

import (
	"context"
	"fmt"
)

// OrderCounter reports how many completed orders a requester has. Implemented
// by the orders store.
type OrderCounter interface {
	CountCompletedByRequester(ctx context.Context, requesterID string) (int, error)
}

// Engine answers reward-eligibility questions by combining the reward trigger
// with a requester's order history.
type Engine struct {
	store  *Store
	orders OrderCounter
}

// NewEngine creates an incentive Engine.
func NewEngine(store *Store, orders OrderCounter) *Engine {
	return &Engine{store: store, orders: orders}
}

// RewardStatus computes the requester's progress toward the configured
// trigger. At an exact multiple of OrdersRequired (with at least one
// completed order) Remaining is reported as 0: a reward is available now.
func (e *Engine) RewardStatus(ctx context.Context, requesterID string) (*RewardStatus, error) {
	trigger, err := e.store.GetRewardTrigger(ctx)
	if err != nil {
		return nil, err
	}
	if trigger.OrdersRequired < 1 {
		return nil, fmt.Errorf("reward trigger misconfigured: orders required is %d", trigger.OrdersRequired)
	}
	completed, err := e.orders.CountCompletedByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	progress := completed % trigger.OrdersRequired
	remaining := trigger.OrdersRequired - progress
	if progress == 0 {
		if completed > 0 {
			remaining = 0
		} else {
			remaining = trigger.OrdersRequired
		}
	}
	return &RewardStatus{
		CompletedOrders: completed,
		OrdersRequired:  trigger.OrdersRequired,
		Remaining:       remaining,
		Percent:         trigger.Percent,
		Uses:            trigger.Uses,
	}, nil
}
