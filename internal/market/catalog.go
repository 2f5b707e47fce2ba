package market

import (
	"context"
	"fmt"

	"github.com/tradepost/marketcore/internal/incentives"
	"github.com/tradepost/marketcore/internal/ledger"
	"github.com/tradepost/marketcore/internal/orders"
	"github.com/tradepost/marketcore/internal/stock"
)

// Catalog and incentive management. Mutations are privileged and audited;
// queries pass straight through to the stores.

// UpsertItem creates or updates a catalog item.
func (s *Service) UpsertItem(ctx context.Context, name string, price float64, kind string, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if err := s.stock.UpsertItem(ctx, name, price, kind); err != nil {
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("item %s upserted: price %.2f kind %s", name, price, kind))
	return nil
}

// AdjustStock changes an item's quantity by delta.
func (s *Service) AdjustStock(ctx context.Context, name string, delta int, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if err := s.stock.AdjustQuantity(ctx, name, delta); err != nil {
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("stock of %s adjusted by %d", name, delta))
	return nil
}

// SetItemPrice updates an item's unit price.
func (s *Service) SetItemPrice(ctx context.Context, name string, price float64, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if err := s.stock.SetPrice(ctx, name, price); err != nil {
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("price of %s set to %.2f", name, price))
	return nil
}

// ZeroStock marks an item sold out.
func (s *Service) ZeroStock(ctx context.Context, name string, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if err := s.stock.ZeroQuantity(ctx, name); err != nil {
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("stock of %s cleared", name))
	return nil
}

// CreateHiddenCategory registers a priced hidden category.
func (s *Service) CreateHiddenCategory(ctx context.Context, name string, price float64, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if err := s.stock.CreateHiddenCategory(ctx, name, price); err != nil {
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("hidden category %s created at %.2f", name, price))
	return nil
}

// PushHiddenPayload appends a fulfillment payload to a hidden category.
func (s *Service) PushHiddenPayload(ctx context.Context, name, payload string, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if err := s.stock.PushPayload(ctx, name, payload); err != nil {
		return err
	}
	// payload contents never reach the audit trail
	s.appendEvent(ctx, fmt.Sprintf("payload added to hidden category %s", name))
	return nil
}

// GetItem returns one catalog item.
func (s *Service) GetItem(ctx context.Context, name string) (*stock.Item, error) {
	return s.stock.GetItem(ctx, name)
}

// ListItems returns the catalog.
func (s *Service) ListItems(ctx context.Context) ([]stock.Item, error) {
	return s.stock.ListItems(ctx)
}

// ListHiddenCategories returns the hidden categories with payload counts.
func (s *Service) ListHiddenCategories(ctx context.Context) ([]stock.HiddenCategory, error) {
	return s.stock.ListHiddenCategories(ctx)
}

// ListOrders returns a requester's orders, oldest first.
func (s *Service) ListOrders(ctx context.Context, requesterID string) ([]orders.Order, error) {
	return s.orders.ListByRequester(ctx, requesterID)
}

// GetOrder returns one order or ErrNotFound.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return o, nil
}

// --- incentives ---

// CreateDiscount registers a use-limited discount code.
func (s *Service) CreateDiscount(ctx context.Context, code string, percent, uses int, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if err := s.incentives.CreateDiscount(ctx, code, percent, uses); err != nil {
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("discount %s created: %d%% x%d", code, percent, uses))
	return nil
}

// GetDiscount returns a discount by code.
func (s *Service) GetDiscount(ctx context.Context, code string) (*incentives.Discount, error) {
	return s.incentives.GetDiscount(ctx, code)
}

// UseDiscount consumes one use of the code and returns its percent.
func (s *Service) UseDiscount(ctx context.Context, code string) (int, error) {
	percent, err := s.incentives.UseDiscount(ctx, code)
	if err != nil {
		return 0, err
	}
	s.appendEvent(ctx, fmt.Sprintf("discount %s used (%d%%)", code, percent))
	return percent, nil
}

// SetRewardTrigger replaces the standing reward rule.
func (s *Service) SetRewardTrigger(ctx context.Context, ordersRequired, percent, uses int, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if ordersRequired < 1 {
		return fmt.Errorf("orders required must be at least 1: %w", ErrInvalidArgument)
	}
	if err := s.incentives.SetRewardTrigger(ctx, ordersRequired, percent, uses); err != nil {
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("reward trigger set: every %d orders -> %d%% x%d", ordersRequired, percent, uses))
	return nil
}

// RewardStatus reports the requester's progress toward the reward trigger.
func (s *Service) RewardStatus(ctx context.Context, requesterID string) (*incentives.RewardStatus, error) {
	return s.engine.RewardStatus(ctx, requesterID)
}

// --- payments & audit ---

// RecordPayment appends a claimed payment for manual or external matching.
func (s *Service) RecordPayment(ctx context.Context, requesterID string, amount float64, currency string) (string, error) {
	id, err := s.ledger.RecordPayment(ctx, requesterID, amount, currency)
	if err != nil {
		return "", err
	}
	s.appendEvent(ctx, fmt.Sprintf("payment %s recorded: %s %.2f %s", id, requesterID, amount, currency))
	return id, nil
}

// ListUnmatchedPayments returns payments awaiting matching.
func (s *Service) ListUnmatchedPayments(ctx context.Context) ([]ledger.Payment, error) {
	return s.ledger.ListUnmatchedPayments(ctx)
}

// MatchPayment (privileged) marks a payment matched; never reversed.
func (s *Service) MatchPayment(ctx context.Context, paymentID string, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	if err := s.ledger.MarkMatched(ctx, paymentID); err != nil {
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("payment %s matched", paymentID))
	return nil
}

// RecentEvents returns up to n audit entries, newest first.
func (s *Service) RecentEvents(ctx context.Context, n int) ([]ledger.Event, error) {
	return s.ledger.RecentEvents(ctx, n)
}

// ListFailedDeliveries returns the queued delivery failures.
func (s *Service) ListFailedDeliveries(ctx context.Context) ([]ledger.FailedDelivery, error) {
	return s.ledger.ListFailedDeliveries(ctx)
}
