package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/tradepost/marketcore/internal/aws"
)

// ErrStatusMismatch indicates a conditional transition found the order in a
// different state than expected (or already deleted).
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// isConditionalFailure reports whether err is a DynamoDB conditional-check
// failure. The typed exception covers direct SDK responses; the smithy check
// covers errors that arrive wrapped in a generic API error.
func isConditionalFailure(err error) bool {
	var cc *types.ConditionalCheckFailedException
	if errors.As(err, &cc) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new order. The order id must be set by the caller and
// must not already exist.
func (s *Store) Create(ctx context.Context, order Order) error {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in the orders table
//
// in a single TransactWriteItems call, so a replayed placement can never
// produce a second order.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &idempotencyTable,
				Item:                idempMap,
				ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction canceled (likely idempotency key exists): %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByRequester returns the requester's orders sorted oldest first.
func (s *Store) ListByRequester(ctx context.Context, requesterID string) ([]Order, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, o := range all {
		if o.RequesterID == requesterID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UnpaidByRequester returns the requester's unpaid orders sorted oldest
// first, so payment confirmation is first-in-first-confirmed.
func (s *Store) UnpaidByRequester(ctx context.Context, requesterID string) ([]Order, error) {
	all, err := s.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, o := range all {
		if !o.Paid {
			out = append(out, o)
		}
	}
	return out, nil
}

// PendingByRequester returns the requester's cancellable (pending-payment)
// orders sorted oldest first.
func (s *Store) PendingByRequester(ctx context.Context, requesterID string) ([]Order, error) {
	all, err := s.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, o := range all {
		if o.Status == StatusPendingPayment {
			out = append(out, o)
		}
	}
	return out, nil
}

// CountCompletedByRequester counts the requester's paid orders. Used for
// reward-trigger progress.
func (s *Store) CountCompletedByRequester(ctx context.Context, requesterID string) (int, error) {
	all, err := s.ListByRequester(ctx, requesterID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range all {
		if o.Paid {
			n++
		}
	}
	return n, nil
}

// MarkPaid flips the order to paid while moving it from expectedStatus to
// newStatus in the same guarded write. Confirming an already-paid order, or
// one whose status moved underneath us, fails with ErrStatusMismatch.
func (s *Store) MarkPaid(ctx context.Context, orderID, expectedStatus, newStatus string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, paid = :p, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":p":        &types.AttributeValueMemberBOOL{Value: true},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
			":unpaid":   &types.AttributeValueMemberBOOL{Value: false},
		},
		ConditionExpression: awsString("#s = :expected AND paid = :unpaid"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// AcceptWithPrice conditionally moves the order from expectedStatus to
// ACCEPTED while setting its price in the same write.
func (s *Store) AcceptWithPrice(ctx context.Context, orderID, expectedStatus string, price float64) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, price = :p, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: StatusAccepted},
			":p":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", price)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
		},
		ConditionExpression: awsString("#s = :expected"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// SetDeliveryContent records the fulfillment content on the order and marks
// it delivered, so retries re-send the same content (hidden payloads are
// popped exactly once).
func (s *Store) SetDeliveryContent(ctx context.Context, orderID, content string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:    awsString("SET delivery_content = :c, delivered = :d, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(order_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":  &types.AttributeValueMemberS{Value: content},
			":d":  &types.AttributeValueMemberBOOL{Value: true},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// DeleteIfStatusIn deletes the order only while it is in one of the given
// states. Used for cancellation and rejection, which must never remove a
// progressed order.
func (s *Store) DeleteIfStatusIn(ctx context.Context, orderID string, statuses ...string) error {
	if len(statuses) == 0 {
		return errors.New("no statuses given")
	}
	values := map[string]types.AttributeValue{}
	terms := make([]string, len(statuses))
	for i, st := range statuses {
		ph := fmt.Sprintf(":s%d", i)
		values[ph] = &types.AttributeValueMemberS{Value: st}
		terms[i] = "#s = " + ph
	}
	cond := terms[0]
	for _, t := range terms[1:] {
		cond += " OR " + t
	}
	input := &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	}
	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (s *Store) scanAll(ctx context.Context) ([]Order, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{TableName: &s.tableName})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	all := make([]Order, 0, len(out.Items))
	for _, raw := range out.Items {
		var o Order
		if err := attributevalue.UnmarshalMap(raw, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		all = append(all, o)
	}
	return all, nil
}

func awsString(s string) *string { return &s }
