package orders

import "time"

// Order statuses. Rejected and cancelled orders are deleted rather than
// stored, so only the live states appear here.
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusPaid           = "PAID"
	StatusAccepted       = "ACCEPTED"
)

// Order represents one purchase or custom-order request in the orders table.
// Item name, kind and (for instant orders) price are snapshotted at creation
// so later catalog edits never alter an in-flight order.
type Order struct {
	OrderID         string    `dynamodbav:"order_id"` // PK
	RequesterID     string    `dynamodbav:"requester_id"`
	Item            string    `dynamodbav:"item"`
	Kind            string    `dynamodbav:"kind"`
	Quantity        int       `dynamodbav:"qty"`
	Description     string    `dynamodbav:"desc,omitempty"`
	Price           float64   `dynamodbav:"price,omitempty"` // zero until acceptance for custom orders
	Status          string    `dynamodbav:"status"`
	Paid            bool      `dynamodbav:"paid"` // tracked apart from status: custom orders may be accepted before payment
	Delivered       bool      `dynamodbav:"delivered,omitempty"`
	DeliveryContent string    `dynamodbav:"delivery_content,omitempty"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
	UpdatedAt       time.Time `dynamodbav:"updated_at"`
}
