package validation

// PlaceInstantOrderRequest is the payload for POST /orders/instant.
type PlaceInstantOrderRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
	Item        string `json:"item" validate:"required"`
	Quantity    int    `json:"quantity" validate:"omitempty,min=1"` // defaults to 1
}

// PlaceCustomOrderRequest is the payload for POST /orders/custom.
type PlaceCustomOrderRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
	Item        string `json:"item" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// ConfirmPaymentRequest is the payload for POST /payments/confirm.
type ConfirmPaymentRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
}

// AcceptOrderRequest is the payload for POST /orders/:id/accept.
type AcceptOrderRequest struct {
	Price float64 `json:"price" validate:"required,gt=0"`
}

// CancelOrderRequest is the payload for POST /orders/cancel. Exactly one
// targeting mode applies: an explicit order id, all cancellable orders, or
// (neither set) the most recent cancellable order.
type CancelOrderRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
	OrderID     string `json:"order_id,omitempty"`
	All         bool   `json:"all,omitempty"`
}

// DeliverRequest is the payload for POST /orders/:id/deliver. Content may be
// empty for hidden-kind orders, whose payload comes from the queue.
type DeliverRequest struct {
	Content string `json:"content,omitempty"`
}

// RetryDeliveryRequest is the payload for POST /orders/:id/retry-delivery.
type RetryDeliveryRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
}

// UpsertItemRequest is the payload for POST /stock.
type UpsertItemRequest struct {
	Name  string  `json:"name" validate:"required"`
	Price float64 `json:"price" validate:"gte=0"`
	Kind  string  `json:"kind" validate:"required,oneof=instant order custom hidden"`
}

// AdjustStockRequest is the payload for POST /stock/:name/adjust.
type AdjustStockRequest struct {
	Delta int `json:"delta" validate:"required"` // zero deltas are pointless and rejected
}

// SetPriceRequest is the payload for POST /stock/:name/price.
type SetPriceRequest struct {
	Price float64 `json:"price" validate:"gte=0"`
}

// CreateHiddenCategoryRequest is the payload for POST /hidden.
type CreateHiddenCategoryRequest struct {
	Name  string  `json:"name" validate:"required"`
	Price float64 `json:"price" validate:"gte=0"`
}

// PushPayloadRequest is the payload for POST /hidden/:name/payloads.
type PushPayloadRequest struct {
	Payload string `json:"payload" validate:"required"`
}

// CreateDiscountRequest is the payload for POST /discounts.
type CreateDiscountRequest struct {
	Code    string `json:"code" validate:"required"`
	Percent int    `json:"percent" validate:"required,min=1,max=100"`
	Uses    int    `json:"uses" validate:"required,min=1"`
}

// RewardTriggerRequest is the payload for PUT /rewards/trigger.
type RewardTriggerRequest struct {
	Orders  int `json:"orders" validate:"required,min=1"`
	Percent int `json:"percent" validate:"required,min=1,max=100"`
	Uses    int `json:"uses" validate:"required,min=1"`
}

// RecordPaymentRequest is the payload for POST /payments.
type RecordPaymentRequest struct {
	RequesterID string  `json:"requester_id" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Currency    string  `json:"currency" validate:"required"`
}

// SetConfigRequest is the payload for PUT /settings/:key.
type SetConfigRequest struct {
	Value string `json:"value" validate:"required"`
}
