package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrNoPayloads indicates the hidden category exists but its queue is empty.
var ErrNoPayloads = errors.New("no payloads available")

// CreateHiddenCategory registers a priced hidden category with an empty
// payload queue. Creating an existing category fails.
func (s *Store) CreateHiddenCategory(ctx context.Context, name string, price float64) error {
	cat := HiddenCategory{Name: name, Price: price, Payloads: []string{}}
	item, err := attributevalue.MarshalMap(cat)
	if err != nil {
		return fmt.Errorf("marshal hidden category: %w", err)
	}
	// attributevalue drops empty slices to NULL unless told otherwise
	item["payloads"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}

	input := &dyn.PutItemInput{
		TableName:                &s.hiddenTable,
		Item:                     item,
		ConditionExpression:      awsString("attribute_not_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("hidden category %q already exists", name)
		}
		return fmt.Errorf("create hidden category: %w", err)
	}
	return nil
}

// PushPayload appends a fulfillment payload to the category's queue.
func (s *Store) PushPayload(ctx context.Context, name, payload string) error {
	input := &dyn.UpdateItemInput{
		TableName: &s.hiddenTable,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		UpdateExpression:         awsString("SET payloads = list_append(payloads, :p)"),
		ConditionExpression:      awsString("attribute_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: payload},
			}},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("push payload: %w", err)
	}
	return nil
}

// PopPayload removes and returns the oldest payload in one guarded update.
// Two concurrent pops never observe the same payload: the REMOVE is applied
// server side and the second caller sees the already-shortened list.
func (s *Store) PopPayload(ctx context.Context, name string) (string, error) {
	input := &dyn.UpdateItemInput{
		TableName: &s.hiddenTable,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
		UpdateExpression:         awsString("REMOVE payloads[0]"),
		ConditionExpression:      awsString("attribute_exists(#n) AND size(payloads) > :zero"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		ReturnValues: types.ReturnValueAllOld,
	}
	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			// distinguish a missing category from an empty queue
			if _, gerr := s.GetHiddenCategory(ctx, name); gerr != nil {
				return "", gerr
			}
			return "", fmt.Errorf("%w: %s", ErrNoPayloads, name)
		}
		return "", fmt.Errorf("pop payload: %w", err)
	}
	var prior HiddenCategory
	if err := attributevalue.UnmarshalMap(out.Attributes, &prior); err != nil {
		return "", fmt.Errorf("unmarshal hidden category: %w", err)
	}
	if len(prior.Payloads) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoPayloads, name)
	}
	return prior.Payloads[0], nil
}

// GetHiddenCategory fetches a hidden category by name.
func (s *Store) GetHiddenCategory(ctx context.Context, name string) (*HiddenCategory, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.hiddenTable,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: name},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get hidden category: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	var cat HiddenCategory
	if err := attributevalue.UnmarshalMap(out.Item, &cat); err != nil {
		return nil, fmt.Errorf("unmarshal hidden category: %w", err)
	}
	return &cat, nil
}

// ListHiddenCategories returns every hidden category with its remaining
// payload counts, for staff-facing stock views.
func (s *Store) ListHiddenCategories(ctx context.Context) ([]HiddenCategory, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{TableName: &s.hiddenTable})
	if err != nil {
		return nil, fmt.Errorf("scan hidden categories: %w", err)
	}
	cats := make([]HiddenCategory, 0, len(out.Items))
	for _, raw := range out.Items {
		var cat HiddenCategory
		if err := attributevalue.UnmarshalMap(raw, &cat); err != nil {
			return nil, fmt.Errorf("unmarshal hidden category: %w", err)
		}
		cats = append(cats, cat)
	}
	return cats, nil
}
