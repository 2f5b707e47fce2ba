package incentives

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tradepost/marketcore/internal/aws"
)

var (
	// ErrNotFound indicates the discount code (or reward trigger) does not exist.
	ErrNotFound = errors.New("discount not found")
	// ErrDiscountExhausted indicates the discount has no uses left.
	ErrDiscountExhausted = errors.New("discount exhausted")
	// ErrAlreadyExists indicates a discount code collision on creation.
	ErrAlreadyExists = errors.New("discount already exists")
)

// Store encapsulates operations on the discounts and rewards tables.
type Store struct {
	client       aws.DynamoDBAPI
	tableName    string
	rewardsTable string
}

// NewStore creates an incentives Store.
func NewStore(client aws.DynamoDBAPI, tableName, rewardsTable string) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		rewardsTable: rewardsTable,
	}
}

// CreateDiscount registers a new discount code.
func (s *Store) CreateDiscount(ctx context.Context, code string, percent, uses int) error {
	d := Discount{Code: code, Percent: percent, Uses: uses}
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("marshal discount: %w", err)
	}
	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(code)"),
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, code)
		}
		return fmt.Errorf("put discount: %w", err)
	}
	return nil
}

// GetDiscount fetches a discount by code.
func (s *Store) GetDiscount(ctx context.Context, code string) (*Discount, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"code": &types.AttributeValueMemberS{Value: code},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get discount: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	var d Discount
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, fmt.Errorf("unmarshal discount: %w", err)
	}
	return &d, nil
}

// UseDiscount consumes one use and returns the discount percent. The check
// and the decrement are one guarded update, so concurrent redemptions of a
// discount with a single use left yield exactly one success.
func (s *Store) UseDiscount(ctx context.Context, code string) (int, error) {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"code": &types.AttributeValueMemberS{Value: code},
		},
		UpdateExpression:    awsString("SET uses = uses - :one"),
		ConditionExpression: awsString("uses > :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		ReturnValues: types.ReturnValueAllNew,
	}
	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			if _, gerr := s.GetDiscount(ctx, code); gerr != nil {
				return 0, gerr
			}
			return 0, fmt.Errorf("%w: %s", ErrDiscountExhausted, code)
		}
		return 0, fmt.Errorf("use discount: %w", err)
	}
	var d Discount
	if err := attributevalue.UnmarshalMap(out.Attributes, &d); err != nil {
		return 0, fmt.Errorf("unmarshal discount: %w", err)
	}
	return d.Percent, nil
}

// SetRewardTrigger replaces the singleton reward rule. ordersRequired must be
// positive; a zero cadence would make reward progress undefined.
func (s *Store) SetRewardTrigger(ctx context.Context, ordersRequired, percent, uses int) error {
	if ordersRequired < 1 {
		return fmt.Errorf("orders required must be positive, got %d", ordersRequired)
	}
	t := RewardTrigger{TriggerID: rewardKey, OrdersRequired: ordersRequired, Percent: percent, Uses: uses}
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal reward trigger: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.rewardsTable, Item: item}); err != nil {
		return fmt.Errorf("put reward trigger: %w", err)
	}
	return nil
}

// GetRewardTrigger fetches the singleton reward rule, or ErrNotFound if none
// has been configured.
func (s *Store) GetRewardTrigger(ctx context.Context) (*RewardTrigger, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.rewardsTable,
		Key: map[string]types.AttributeValue{
			"trigger_id": &types.AttributeValueMemberS{Value: rewardKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get reward trigger: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: reward trigger", ErrNotFound)
	}
	var t RewardTrigger
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("unmarshal reward trigger: %w", err)
	}
	return &t, nil
}

func awsString(s string) *string { return &s }
