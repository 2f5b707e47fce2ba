// Package config reads and writes runtime key/value settings (log channel,
// per-event forwarding targets) kept in a DynamoDB table. The core treats
// them as plain lookups; interpretation belongs to the front end.
package config

import (
	"context"
	"errors"
	"fmt"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tradepost/marketcore/internal/aws"
)

// ErrNotFound indicates the config key has no stored value.
var ErrNotFound = errors.New("config key not found")

// Store is a thin key/value layer over the config table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a config Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Set upserts a config value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: awsString("SET #v = :v"),
		ExpressionAttributeNames: map[string]string{
			"#v": "value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// Get returns the stored value for key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return "", fmt.Errorf("get config: %w", err)
	}
	if len(out.Item) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	v, ok := out.Item["value"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("config value for %q is not a string", key)
	}
	return v.Value, nil
}

func awsString(s string) *string { return &s }
