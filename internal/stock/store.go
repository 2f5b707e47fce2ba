package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tradepost/marketcore/internal/aws"
)

var (
	// ErrNotFound indicates the item (or hidden category) does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrInsufficientStock indicates a decrement would drive a bounded quantity negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Store encapsulates operations on the stock table.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	hiddenTable string
}

// NewStore creates a stock Store over the items and hidden-inventory tables.
func NewStore(client aws.DynamoDBAPI, tableName, hiddenTable string) *Store {
	return &Store{
		client:      client,
		tableName:   tableName,
		hiddenTable: hiddenTable,
	}
}

// UpsertItem creates or updates an item's price and kind. It is idempotent on
// name and never touches the stored quantity; use AdjustQuantity or
// ZeroQuantity for that.
func (s *Store) UpsertItem(ctx context.Context, name string, price float64, kind string) error {
	if !ValidKind(kind) {
		return fmt.Errorf("invalid kind %q", kind)
	}
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		UpdateExpression: awsString("SET price = :p, kind = :k"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberN{Value: formatFloat(price)},
			":k": &types.AttributeValueMemberS{Value: kind},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// AdjustQuantity changes an item's quantity by delta as a single guarded
// update. Decrements fail with ErrInsufficientStock when the stored quantity
// is smaller than the amount removed; unbounded items (no qty attribute)
// succeed without a write for negative deltas.
func (s *Store) AdjustQuantity(ctx context.Context, name string, delta int) error {
	item, err := s.GetItem(ctx, name)
	if err != nil {
		return err
	}
	if !item.Bounded() {
		if delta < 0 {
			return nil
		}
		// restocking an unlimited item bounds it
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		ExpressionAttributeNames: map[string]string{"#n": "name"},
	}
	if delta < 0 {
		input.UpdateExpression = awsString("SET qty = qty - :d")
		input.ConditionExpression = awsString("attribute_exists(#n) AND qty >= :d")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberN{Value: formatInt(-delta)},
		}
	} else {
		input.UpdateExpression = awsString("SET qty = if_not_exists(qty, :zero) + :d")
		input.ConditionExpression = awsString("attribute_exists(#n)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":d":    &types.AttributeValueMemberN{Value: formatInt(delta)},
		}
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			if delta < 0 {
				return fmt.Errorf("%w: %s", ErrInsufficientStock, name)
			}
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("adjust quantity: %w", err)
	}
	return nil
}

// SetPrice updates an existing item's unit price.
func (s *Store) SetPrice(ctx context.Context, name string, price float64) error {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		UpdateExpression:         awsString("SET price = :p"),
		ConditionExpression:      awsString("attribute_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberN{Value: formatFloat(price)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("set price: %w", err)
	}
	return nil
}

// ZeroQuantity marks an item as sold out.
func (s *Store) ZeroQuantity(ctx context.Context, name string) error {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		UpdateExpression:         awsString("SET qty = :zero"),
		ConditionExpression:      awsString("attribute_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("zero quantity: %w", err)
	}
	return nil
}

// GetItem fetches an item by name.
func (s *Store) GetItem(ctx context.Context, name string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	var it Item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &it, nil
}

// ListItems returns the full catalog sorted by name.
func (s *Store) ListItems(ctx context.Context) ([]Item, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{TableName: &s.tableName})
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	items := make([]Item, 0, len(out.Items))
	for _, raw := range out.Items {
		var it Item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, fmt.Errorf("unmarshal item: %w", err)
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func awsString(s string) *string { return &s }

func formatInt(v int) string { return fmt.Sprintf("%d", v) }

func formatFloat(v float64) string { return fmt.Sprintf("%g", v) }
