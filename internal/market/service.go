// Package market implements the order/inventory/incentive state machine.
// Every operation is a bounded sequence of storage calls; shared counters
// (stock quantities, discount uses) are only ever changed through guarded
// single-call updates, so operations either fully commit or fail with no
// visible mutation.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradepost/marketcore/internal/idempotency"
	"github.com/tradepost/marketcore/internal/incentives"
	"github.com/tradepost/marketcore/internal/ledger"
	"github.com/tradepost/marketcore/internal/metrics"
	"github.com/tradepost/marketcore/internal/notify"
	"github.com/tradepost/marketcore/internal/orders"
	"github.com/tradepost/marketcore/internal/stock"
)

// Config groups the collaborators of the Service.
type Config struct {
	Stock            *stock.Store
	Orders           *orders.Store
	Idempotency      *idempotency.Store
	IdempotencyTable string
	Ledger           *ledger.Store
	Incentives       *incentives.Store
	Notifier         notify.Notifier
	Metrics          *metrics.Emitter
	Logger           *zap.Logger
	TTLWindow        time.Duration
}

// Service is the transaction core exposed to the front end.
type Service struct {
	stock      *stock.Store
	orders     *orders.Store
	idemp      *idempotency.Store
	idempTable string
	ledger     *ledger.Store
	incentives *incentives.Store
	engine     *incentives.Engine
	notifier   notify.Notifier
	metrics    *metrics.Emitter
	logger     *zap.Logger
	ttlWindow  time.Duration
	newID      func() string
}

// New wires a Service from its collaborators.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		stock:      cfg.Stock,
		orders:     cfg.Orders,
		idemp:      cfg.Idempotency,
		idempTable: cfg.IdempotencyTable,
		ledger:     cfg.Ledger,
		incentives: cfg.Incentives,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		logger:     logger,
		ttlWindow:  cfg.TTLWindow,
		newID:      uuid.NewString,
	}
	s.engine = incentives.NewEngine(cfg.Incentives, cfg.Orders)
	return s
}

// ConfirmResult reports the outcome of a payment confirmation.
type ConfirmResult struct {
	Order    orders.Order `json:"order"`
	Notified bool         `json:"notified"`
}

// --- placement ---

// PlaceInstantOrder validates the item, snapshots its price and creates a
// pending-payment order. Stock is NOT reserved here; reservation happens at
// payment confirmation so unpaid requests never hold inventory. An optional
// idempotency key makes replayed placements return the original order.
func (s *Service) PlaceInstantOrder(ctx context.Context, requesterID, itemName string, qty int, idempotencyKey string) (*orders.Order, error) {
	if qty < 1 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", ErrInvalidArgument)
	}
	item, err := s.stock.GetItem(ctx, itemName)
	if err != nil {
		return nil, err
	}
	if item.Kind != stock.KindInstant {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongKind, itemName, item.Kind)
	}
	// fail fast; the authoritative check is the guarded decrement at confirmation
	if item.Bounded() && qty > *item.Quantity {
		return nil, fmt.Errorf("%w: %s", stock.ErrInsufficientStock, itemName)
	}

	order := orders.Order{
		OrderID:     s.newID(),
		RequesterID: requesterID,
		Item:        itemName,
		Kind:        item.Kind,
		Quantity:    qty,
		Price:       float64(qty) * item.Price,
		Status:      orders.StatusPendingPayment,
	}
	placed, err := s.createOrder(ctx, order, idempotencyKey)
	if err != nil {
		return nil, err
	}
	s.appendEvent(ctx, fmt.Sprintf("order %s placed by %s: %s x%d for %.2f", placed.OrderID, requesterID, itemName, qty, placed.Price))
	s.metrics.Count(ctx, metrics.OrdersPlaced, 1)
	return placed, nil
}

// PlaceCustomOrder creates a pending-payment order for a non-instant item.
// The price is set later by acceptance.
func (s *Service) PlaceCustomOrder(ctx context.Context, requesterID, itemName, description, idempotencyKey string) (*orders.Order, error) {
	item, err := s.stock.GetItem(ctx, itemName)
	if err != nil {
		return nil, err
	}
	if item.Kind == stock.KindInstant {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongKind, itemName, item.Kind)
	}

	order := orders.Order{
		OrderID:     s.newID(),
		RequesterID: requesterID,
		Item:        itemName,
		Kind:        item.Kind,
		Quantity:    1,
		Description: description,
		Status:      orders.StatusPendingPayment,
	}
	placed, err := s.createOrder(ctx, order, idempotencyKey)
	if err != nil {
		return nil, err
	}
	s.appendEvent(ctx, fmt.Sprintf("custom order %s placed by %s: %s (%s)", placed.OrderID, requesterID, itemName, description))
	s.metrics.Count(ctx, metrics.OrdersPlaced, 1)
	return placed, nil
}

func (s *Service) createOrder(ctx context.Context, order orders.Order, idempotencyKey string) (*orders.Order, error) {
	if idempotencyKey == "" {
		if err := s.orders.Create(ctx, order); err != nil {
			return nil, err
		}
		return &order, nil
	}

	now := time.Now().UTC()
	idempItem := map[string]interface{}{
		"idempotency_key": idempotencyKey,
		"status":          idempotency.StatusInProgress,
		"order_id":        order.OrderID,
		"created_at":      now.Format(time.RFC3339),
		"updated_at":      now.Format(time.RFC3339),
	}
	err := s.orders.CreateWithIdempotencyTransaction(ctx, s.idempTable, idempItem, order, s.ttlWindow)
	if err == nil {
		body, _ := json.Marshal(map[string]interface{}{"order_id": order.OrderID, "price": order.Price})
		if merr := s.idemp.MarkDone(ctx, idempotencyKey, string(body), http.StatusCreated); merr != nil {
			s.logger.Warn("mark idempotency done failed", zap.String("key", idempotencyKey), zap.Error(merr))
		}
		return &order, nil
	}

	// the key may already exist; replay the original outcome
	rec, gerr := s.idemp.Get(ctx, idempotencyKey)
	if gerr != nil {
		return nil, fmt.Errorf("idempotency check: %w", gerr)
	}
	if rec == nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	switch rec.Status {
	case idempotency.StatusDone:
		prior, perr := s.orders.Get(ctx, rec.OrderID)
		if perr != nil {
			return nil, perr
		}
		if prior == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rec.OrderID)
		}
		return prior, nil
	case idempotency.StatusInProgress:
		return nil, fmt.Errorf("%w: key %s", ErrPlacementInProgress, idempotencyKey)
	default:
		return nil, fmt.Errorf("unexpected placement record status %q for key %s", rec.Status, idempotencyKey)
	}
}

// --- payment ---

// ConfirmPayment marks the requester's oldest unpaid order as paid. For
// instant orders the stock decrement happens here, and a decrement failure
// fails the confirmation with the order left untouched. Notification failures
// never roll back the payment; they are queued for retry.
func (s *Service) ConfirmPayment(ctx context.Context, requesterID string) (*ConfirmResult, error) {
	unpaid, err := s.orders.UnpaidByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if len(unpaid) == 0 {
		return nil, fmt.Errorf("%w: requester %s", ErrNoUnpaidOrder, requesterID)
	}
	o := unpaid[0]

	if o.Kind == stock.KindInstant {
		if err := s.stock.AdjustQuantity(ctx, o.Item, -o.Quantity); err != nil {
			return nil, fmt.Errorf("reserve stock for order %s: %w", o.OrderID, err)
		}
	}

	newStatus := orders.StatusPaid
	if o.Status == orders.StatusAccepted {
		newStatus = orders.StatusAccepted
	}
	if err := s.orders.MarkPaid(ctx, o.OrderID, o.Status, newStatus); err != nil {
		if o.Kind == stock.KindInstant {
			// release the reservation; the transition never became visible
			if cerr := s.stock.AdjustQuantity(ctx, o.Item, o.Quantity); cerr != nil {
				s.logger.Error("stock compensation failed", zap.String("order_id", o.OrderID), zap.Error(cerr))
			}
		}
		if errors.Is(err, orders.ErrStatusMismatch) {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, ErrInvalidState)
		}
		return nil, err
	}
	o.Paid = true
	o.Status = newStatus

	s.appendEvent(ctx, fmt.Sprintf("order %s paid by %s", o.OrderID, requesterID))
	s.metrics.Count(ctx, metrics.PaymentsConfirmed, 1)
	s.logger.Info("payment confirmed",
		zap.String("order_id", o.OrderID),
		zap.String("requester_id", requesterID),
		zap.String("kind", o.Kind))

	var notified bool
	switch {
	case o.Kind == stock.KindInstant || o.Status == orders.StatusAccepted:
		notified = s.fulfill(ctx, &o)
	default:
		notified = s.notifyOrQueue(ctx, &o, fmt.Sprintf(
			"Payment for order %s received. A staff member will accept it soon.", o.OrderID))
	}
	return &ConfirmResult{Order: o, Notified: notified}, nil
}

// --- custom order lifecycle ---

// AcceptCustomOrder (privileged) prices and accepts a custom order. Valid
// only from pending-payment or paid. The requester is notified with payment
// instructions when unpaid, or with fulfillment when already paid.
func (s *Service) AcceptCustomOrder(ctx context.Context, orderID string, price float64, privileged bool) (bool, error) {
	if !privileged {
		return false, ErrUnauthorized
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if o.Kind == stock.KindInstant {
		return false, fmt.Errorf("%w: instant orders are not accepted manually", ErrWrongKind)
	}
	if o.Status != orders.StatusPendingPayment && o.Status != orders.StatusPaid {
		return false, fmt.Errorf("order %s is %s: %w", orderID, o.Status, ErrInvalidState)
	}
	if err := s.orders.AcceptWithPrice(ctx, orderID, o.Status, price); err != nil {
		if errors.Is(err, orders.ErrStatusMismatch) {
			return false, fmt.Errorf("order %s: %w", orderID, ErrInvalidState)
		}
		return false, err
	}
	o.Status = orders.StatusAccepted
	o.Price = price
	s.appendEvent(ctx, fmt.Sprintf("order %s accepted at %.2f", orderID, price))

	var notified bool
	if o.Paid {
		notified = s.fulfill(ctx, o)
	} else {
		notified = s.notifyOrQueue(ctx, o, fmt.Sprintf(
			"Order %s accepted. Please pay %.2f and confirm your payment.", orderID, price))
	}
	return notified, nil
}

// RejectCustomOrder (privileged) deletes a not-yet-accepted custom order and
// notifies the requester. A notification failure is reported to the caller
// but the rejection stands.
func (s *Service) RejectCustomOrder(ctx context.Context, orderID string, privileged bool) (bool, error) {
	if !privileged {
		return false, ErrUnauthorized
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if o.Status == orders.StatusAccepted {
		return false, fmt.Errorf("order %s already accepted: %w", orderID, ErrInvalidState)
	}
	if err := s.orders.DeleteIfStatusIn(ctx, orderID, orders.StatusPendingPayment, orders.StatusPaid); err != nil {
		if errors.Is(err, orders.ErrStatusMismatch) {
			return false, fmt.Errorf("order %s: %w", orderID, ErrInvalidState)
		}
		return false, err
	}
	s.appendEvent(ctx, fmt.Sprintf("order %s rejected", orderID))

	notified := true
	if err := s.notifier.Deliver(ctx, o.RequesterID, fmt.Sprintf("Your order %s (%s) was rejected.", orderID, o.Item)); err != nil {
		s.logger.Warn("rejection notice failed", zap.String("order_id", orderID), zap.Error(err))
		notified = false
	}
	return notified, nil
}

// --- cancellation ---

// CancelOrder deletes the requester's pending-payment order with the given
// id. Paid and accepted orders are immutable to cancellation.
func (s *Service) CancelOrder(ctx context.Context, requesterID, orderID string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if o.RequesterID != requesterID {
		return fmt.Errorf("order %s: %w", orderID, ErrNotOwned)
	}
	if err := s.orders.DeleteIfStatusIn(ctx, orderID, orders.StatusPendingPayment); err != nil {
		if errors.Is(err, orders.ErrStatusMismatch) {
			return fmt.Errorf("order %s is %s: %w", orderID, o.Status, ErrInvalidState)
		}
		return err
	}
	s.appendEvent(ctx, fmt.Sprintf("order %s cancelled by %s", orderID, requesterID))
	return nil
}

// CancelLatest cancels the requester's most recently placed cancellable order.
func (s *Service) CancelLatest(ctx context.Context, requesterID string) (*orders.Order, error) {
	pending, err := s.orders.PendingByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	// walk newest-first: another request may race us to the delete
	for i := len(pending) - 1; i >= 0; i-- {
		o := pending[i]
		err := s.orders.DeleteIfStatusIn(ctx, o.OrderID, orders.StatusPendingPayment)
		if errors.Is(err, orders.ErrStatusMismatch) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.appendEvent(ctx, fmt.Sprintf("order %s cancelled by %s", o.OrderID, requesterID))
		return &o, nil
	}
	return nil, fmt.Errorf("%w: no cancellable order for %s", ErrNotFound, requesterID)
}

// CancelAll cancels every cancellable order of the requester and reports how
// many were removed.
func (s *Service) CancelAll(ctx context.Context, requesterID string) (int, error) {
	pending, err := s.orders.PendingByRequester(ctx, requesterID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range pending {
		err := s.orders.DeleteIfStatusIn(ctx, o.OrderID, orders.StatusPendingPayment)
		if errors.Is(err, orders.ErrStatusMismatch) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		s.appendEvent(ctx, fmt.Sprintf("%d orders cancelled by %s", n, requesterID))
	}
	return n, nil
}

// --- delivery ---

// Deliver (privileged) sends explicit fulfillment content for a paid or
// accepted order. For hidden-kind orders an empty content draws the next
// queued payload instead.
func (s *Service) Deliver(ctx context.Context, orderID, content string, privileged bool) error {
	if !privileged {
		return ErrUnauthorized
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if !o.Paid {
		return fmt.Errorf("order %s not paid: %w", orderID, ErrInvalidState)
	}
	if content != "" {
		if err := s.orders.SetDeliveryContent(ctx, orderID, content); err != nil {
			return err
		}
		o.DeliveryContent = content
	}
	if !s.fulfill(ctx, o) {
		return fmt.Errorf("order %s: %w", orderID, ErrNotificationFailed)
	}
	s.appendEvent(ctx, fmt.Sprintf("order %s delivered", orderID))
	return nil
}

// RetryDelivery re-sends the stored fulfillment content of the requester's
// own order. On success the queued FailedDelivery entry is removed; on
// failure it stays queued.
func (s *Service) RetryDelivery(ctx context.Context, requesterID, orderID string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if o.RequesterID != requesterID {
		return fmt.Errorf("order %s: %w", orderID, ErrNotOwned)
	}
	// instant orders are deliverable once paid; custom and hidden orders must
	// also have passed acceptance, or a retry would fulfill an unpriced order
	eligible := o.Status == orders.StatusPaid
	if o.Kind != stock.KindInstant {
		eligible = o.Status == orders.StatusAccepted
	}
	if !o.Paid || !eligible {
		return fmt.Errorf("order %s is %s: %w", orderID, o.Status, ErrInvalidState)
	}
	if !s.fulfill(ctx, o) {
		return fmt.Errorf("order %s: %w", orderID, ErrDeliveryUnavailable)
	}
	return nil
}

// fulfill resolves the order's delivery content (popping a hidden payload
// exactly once), persists it, and attempts delivery. A failure enqueues a
// FailedDelivery; a success clears any queued entry. Reports whether the
// requester was reached.
func (s *Service) fulfill(ctx context.Context, o *orders.Order) bool {
	content := o.DeliveryContent
	if content == "" {
		switch o.Kind {
		case stock.KindHidden:
			payload, err := s.stock.PopPayload(ctx, o.Item)
			if err != nil {
				s.logger.Warn("hidden payload unavailable",
					zap.String("order_id", o.OrderID), zap.String("item", o.Item), zap.Error(err))
				s.queueFailure(ctx, o)
				return false
			}
			content = fmt.Sprintf("Your delivery for order %s: %s", o.OrderID, payload)
		case stock.KindInstant:
			content = fmt.Sprintf("Your delivery for order %s: %s x%d", o.OrderID, o.Item, o.Quantity)
		default:
			content = fmt.Sprintf("Your order %s (%s) was accepted at %.2f. Fulfillment is on its way.",
				o.OrderID, o.Item, o.Price)
		}
		if err := s.orders.SetDeliveryContent(ctx, o.OrderID, content); err != nil {
			s.logger.Warn("store delivery content failed", zap.String("order_id", o.OrderID), zap.Error(err))
		}
		o.DeliveryContent = content
	}
	return s.notifyOrQueue(ctx, o, content)
}

// notifyOrQueue attempts delivery and queues a FailedDelivery on failure.
func (s *Service) notifyOrQueue(ctx context.Context, o *orders.Order, content string) bool {
	if err := s.notifier.Deliver(ctx, o.RequesterID, content); err != nil {
		s.logger.Warn("notification failed",
			zap.String("order_id", o.OrderID),
			zap.String("requester_id", o.RequesterID),
			zap.Error(err))
		if qerr := s.ledger.EnqueueFailedDelivery(ctx, o.OrderID, o.RequesterID); qerr != nil {
			s.logger.Error("enqueue failed delivery failed", zap.String("order_id", o.OrderID), zap.Error(qerr))
		}
		s.metrics.Count(ctx, metrics.DeliveriesFailed, 1)
		return false
	}
	if err := s.ledger.RemoveFailedDelivery(ctx, o.OrderID); err != nil {
		s.logger.Warn("clear failed delivery failed", zap.String("order_id", o.OrderID), zap.Error(err))
	}
	return true
}

func (s *Service) queueFailure(ctx context.Context, o *orders.Order) {
	if err := s.ledger.EnqueueFailedDelivery(ctx, o.OrderID, o.RequesterID); err != nil {
		s.logger.Error("enqueue failed delivery failed", zap.String("order_id", o.OrderID), zap.Error(err))
	}
	s.metrics.Count(ctx, metrics.DeliveriesFailed, 1)
}

func (s *Service) appendEvent(ctx context.Context, text string) {
	if err := s.ledger.AppendEvent(ctx, text); err != nil {
		s.logger.Warn("append event failed", zap.String("event", text), zap.Error(err))
	}
}
