// Package catalog is the stock ledger over the products table: reads of
// live price and stock plus the transactional stock reservations and restocks.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-marketplace-orders/internal/aws"
)

// batchGetLimit is DynamoDB's BatchGetItem key limit.
const batchGetLimit = 100

// ErrInsufficientStock is returned when a reservation would take stock below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

// Ledger reads products and builds stock changes.
type Ledger struct {
	client    aws.DynamoDBAPI
	tableName string
	retry     retryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewLedger returns a Ledger over the given products table.
func NewLedger(client aws.DynamoDBAPI, tableName string) *Ledger {
	return &Ledger{
		client:    client,
		tableName: tableName,
		retry:     defaultRetryPolicy(),
		sleep:     sleepContext,
	}
}

// TableName is the products table the ledger writes to.
func (l *Ledger) TableName() string { return l.tableName }

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches a product by id. Returns (nil, nil) if not found.
func (l *Ledger) Get(ctx context.Context, productID string) (*Product, error) {
	out, err := l.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &l.tableName,
		Key:            productKey(productID),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// GetMany fetches products by id. Missing ids are simply absent from the result.
func (l *Ledger) GetMany(ctx context.Context, productIDs []string) (map[string]Product, error) {
	result := make(map[string]Product, len(productIDs))
	ids := dedupe(productIDs)

	for start := 0; start < len(ids); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(ids) {
			end = len(ids)
		}
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, productKey(id))
		}

		request := map[string]types.KeysAndAttributes{
			l.tableName: {Keys: keys, ConsistentRead: boolPtr(true)},
		}
		for attempt := 1; len(request) > 0; attempt++ {
			if attempt > 1 {
				// throttled: back off before resubmitting what was left
				if attempt > l.retry.MaxAttempts {
					return nil, fmt.Errorf("batch get products: %d keys unprocessed after %d attempts", len(request[l.tableName].Keys), l.retry.MaxAttempts)
				}
				if err := l.sleep(ctx, l.retry.delay(attempt-1)); err != nil {
					return nil, fmt.Errorf("batch get products: %w", err)
				}
			}
			out, err := l.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get products: %w", err)
			}
			for _, item := range out.Responses[l.tableName] {
				var p Product
				if err := attributevalue.UnmarshalMap(item, &p); err != nil {
					return nil, fmt.Errorf("unmarshal product: %w", err)
				}
				result[p.ProductID] = p
			}
			request = out.UnprocessedKeys
		}
	}
	return result, nil
}

// ReserveItem builds the transactional decrement taken when an order is
// placed. It only applies while the product is active and has qty in stock.
func (l *Ledger) ReserveItem(productID string, qty int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           &l.tableName,
			Key:                 productKey(productID),
			UpdateExpression:    awsString("SET stock = stock - :q"),
			ConditionExpression: awsString("attribute_exists(product_id) AND #st = :active AND stock >= :q"),
			ExpressionAttributeNames: map[string]string{
				"#st": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":q":      numberAttr(qty),
				":active": &types.AttributeValueMemberS{Value: StatusActive},
			},
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	}
}

// RestockItem builds the transactional increment applied when order lines
// are cancelled.
func (l *Ledger) RestockItem(productID string, qty int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           &l.tableName,
			Key:                 productKey(productID),
			UpdateExpression:    awsString("SET stock = stock + :q"),
			ConditionExpression: awsString("attribute_exists(product_id)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":q": numberAttr(qty),
			},
		},
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func numberAttr(n int) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

func awsString(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
