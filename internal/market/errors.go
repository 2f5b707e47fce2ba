package market

import "errors"

// Error taxonomy returned across the core boundary. Storage-level sentinels
// (stock.ErrNotFound, stock.ErrInsufficientStock, incentives.ErrDiscountExhausted)
// pass through unchanged; these cover the state machine itself.
var (
	// ErrInvalidArgument indicates a request value that fails domain
	// validation (e.g. a non-positive quantity).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates the referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidState indicates the operation was attempted outside its
	// valid source state.
	ErrInvalidState = errors.New("invalid order state")
	// ErrWrongKind indicates the item's kind does not support the operation
	// (e.g. buying a custom item instantly).
	ErrWrongKind = errors.New("item kind does not support this operation")
	// ErrNoUnpaidOrder indicates the requester has no order awaiting payment.
	ErrNoUnpaidOrder = errors.New("no unpaid order")
	// ErrNotOwned indicates the order belongs to a different requester.
	ErrNotOwned = errors.New("order not owned by requester")
	// ErrUnauthorized indicates a privileged operation was invoked without
	// the privilege flag.
	ErrUnauthorized = errors.New("not authorized")
	// ErrNotificationFailed indicates the state transition committed but the
	// requester could not be notified. Recoverable via RetryDelivery.
	ErrNotificationFailed = errors.New("notification failed")
	// ErrDeliveryUnavailable indicates a delivery retry could not reach the
	// requester; the failure stays queued.
	ErrDeliveryUnavailable = errors.New("delivery unavailable")
	// ErrPlacementInProgress indicates a replayed placement whose first
	// attempt has not finished yet.
	ErrPlacementInProgress = errors.New("placement already in progress")
)
