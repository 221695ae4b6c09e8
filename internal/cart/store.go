package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-marketplace-orders/internal/aws"
)

// ErrVersionConflict is returned when the cart changed since it was read.
var ErrVersionConflict = errors.New("cart version conflict")

// Store persists carts. Get returns (nil, nil) when the customer has none.
// Put writes c only if the stored version still equals expected (0 means
// the cart must not exist yet) and bumps c.Version on success.
type Store interface {
	Get(ctx context.Context, email string) (*Cart, error)
	Put(ctx context.Context, c *Cart, expected int64) error
}

// DynamoStore keeps carts in DynamoDB, one item per customer email.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoStore returns a DynamoStore over the carts table.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// Get fetches a cart by email. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, email string) (*Cart, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: email},
		},
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Cart
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return &c, nil
}

// Put conditionally replaces the cart.
func (s *DynamoStore) Put(ctx context.Context, c *Cart, expected int64) error {
	put, err := s.put(c, expected)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrVersionConflict
		}
		return fmt.Errorf("put cart: %w", err)
	}
	c.Version = expected + 1
	return nil
}

// WriteItem builds the same conditional put for use inside a transaction.
// The caller owns bumping c.Version once the transaction commits.
func (s *DynamoStore) WriteItem(c *Cart, expected int64) (types.TransactWriteItem, error) {
	put, err := s.put(c, expected)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: put}, nil
}

func (s *DynamoStore) put(c *Cart, expected int64) (*types.Put, error) {
	next := *c
	next.Version = expected + 1
	if next.Items == nil {
		next.Items = []Item{}
	}
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}

	put := &types.Put{
		TableName: &s.tableName,
		Item:      item,
	}
	if expected == 0 {
		put.ConditionExpression = awsString("attribute_not_exists(email)")
	} else {
		put.ConditionExpression = awsString("version = :v")
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		}
	}
	return put, nil
}

func awsString(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
