package main

// FailureReport is the payload the front end publishes when a direct message
// could not be delivered.
type FailureReport struct {
	OrderID     string `json:"order_id"`
	RequesterID string `json:"requester_id"`
}
