package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/tradepost/marketcore/internal/aws"
)

// ErrNotFound indicates the payment does not exist.
var ErrNotFound = errors.New("payment not found")

// Store groups the three append/query ledgers: payments, events, failed
// deliveries.
type Store struct {
	client        aws.DynamoDBAPI
	paymentsTable string
	eventsTable   string
	failuresTable string
	nowFunc       func() time.Time
}

// NewStore creates a ledger Store over the three tables.
func NewStore(client aws.DynamoDBAPI, paymentsTable, eventsTable, failuresTable string) *Store {
	return &Store{
		client:        client,
		paymentsTable: paymentsTable,
		eventsTable:   eventsTable,
		failuresTable: failuresTable,
		nowFunc:       time.Now,
	}
}

// RecordPayment appends a claimed payment and returns its id.
func (s *Store) RecordPayment(ctx context.Context, requesterID string, amount float64, currency string) (string, error) {
	p := Payment{
		PaymentID:   uuid.NewString(),
		RequesterID: requesterID,
		Amount:      amount,
		Currency:    currency,
		Matched:     false,
		CreatedAt:   s.nowFunc(),
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return "", fmt.Errorf("marshal payment: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.paymentsTable, Item: item}); err != nil {
		return "", fmt.Errorf("put payment: %w", err)
	}
	return p.PaymentID, nil
}

// ListUnmatchedPayments returns payments not yet matched to an order, oldest
// first.
func (s *Store) ListUnmatchedPayments(ctx context.Context) ([]Payment, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{TableName: &s.paymentsTable})
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	payments := make([]Payment, 0, len(out.Items))
	for _, raw := range out.Items {
		var p Payment
		if err := attributevalue.UnmarshalMap(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal payment: %w", err)
		}
		if !p.Matched {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments, nil
}

// MarkMatched flips a payment to matched. The transition is one-way; marking
// an already-matched payment is a no-op success.
func (s *Store) MarkMatched(ctx context.Context, paymentID string) error {
	input := &dyn.UpdateItemInput{
		TableName: &s.paymentsTable,
		Key: map[string]types.AttributeValue{
			"payment_id": &types.AttributeValueMemberS{Value: paymentID},
		},
		UpdateExpression:    awsString("SET matched = :m"),
		ConditionExpression: awsString("attribute_exists(payment_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m": &types.AttributeValueMemberBOOL{Value: true},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("%w: %s", ErrNotFound, paymentID)
		}
		return fmt.Errorf("mark matched: %w", err)
	}
	return nil
}

// AppendEvent writes an audit-trail entry.
func (s *Store) AppendEvent(ctx context.Context, text string) error {
	e := Event{EventID: uuid.NewString(), Text: text, CreatedAt: s.nowFunc()}
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.eventsTable, Item: item}); err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// RecentEvents returns up to n events, newest first. Ties on timestamp break
// on event id so the order is stable.
func (s *Store) RecentEvents(ctx context.Context, n int) ([]Event, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{TableName: &s.eventsTable})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	events := make([]Event, 0, len(out.Items))
	for _, raw := range out.Items {
		var e Event
		if err := attributevalue.UnmarshalMap(raw, &e); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].EventID > events[j].EventID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if n > 0 && len(events) > n {
		events = events[:n]
	}
	return events, nil
}

// EnqueueFailedDelivery records a delivery that could not reach its
// requester. Re-enqueueing the same order overwrites the prior entry.
func (s *Store) EnqueueFailedDelivery(ctx context.Context, orderID, requesterID string) error {
	f := FailedDelivery{OrderID: orderID, RequesterID: requesterID, CreatedAt: s.nowFunc()}
	item, err := attributevalue.MarshalMap(f)
	if err != nil {
		return fmt.Errorf("marshal failed delivery: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.failuresTable, Item: item}); err != nil {
		return fmt.Errorf("put failed delivery: %w", err)
	}
	return nil
}

// ListFailedDeliveries returns the queued failures, oldest first.
func (s *Store) ListFailedDeliveries(ctx context.Context) ([]FailedDelivery, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{TableName: &s.failuresTable})
	if err != nil {
		return nil, fmt.Errorf("scan failed deliveries: %w", err)
	}
	fails := make([]FailedDelivery, 0, len(out.Items))
	for _, raw := range out.Items {
		var f FailedDelivery
		if err := attributevalue.UnmarshalMap(raw, &f); err != nil {
			return nil, fmt.Errorf("unmarshal failed delivery: %w", err)
		}
		fails = append(fails, f)
	}
	sort.Slice(fails, func(i, j int) bool { return fails[i].CreatedAt.Before(fails[j].CreatedAt) })
	return fails, nil
}

// RemoveFailedDelivery deletes the entry for an order. Removing an absent
// entry succeeds, so retry bookkeeping is idempotent.
func (s *Store) RemoveFailedDelivery(ctx context.Context, orderID string) error {
	input := &dyn.DeleteItemInput{
		TableName: &s.failuresTable,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	}
	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("remove failed delivery: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
