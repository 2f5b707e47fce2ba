package ledger

import "time"

// Payment is an append-only record of a claimed payment. Matched is a
// one-way transition; a payment is never un-matched.
type Payment struct {
	PaymentID   string    `dynamodbav:"payment_id"` // PK
	RequesterID string    `dynamodbav:"requester_id"`
	Amount      float64   `dynamodbav:"amount"`
	Currency    string    `dynamodbav:"currency"`
	Matched     bool      `dynamodbav:"matched"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
}

// Event is one audit-trail entry.
type Event struct {
	EventID   string    `dynamodbav:"event_id"` // PK
	Text      string    `dynamodbav:"text"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// FailedDelivery queues a notification that could not reach its requester.
// The entry is removed once a retry succeeds.
type FailedDelivery struct {
	OrderID     string    `dynamodbav:"order_id"` // PK
	RequesterID string    `dynamodbav:"requester_id"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
}
