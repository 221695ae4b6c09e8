package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-marketplace-orders/internal/aws"
	"github.com/imrishuroy/go-marketplace-orders/internal/cart"
	"github.com/imrishuroy/go-marketplace-orders/internal/catalog"
	"github.com/imrishuroy/go-marketplace-orders/internal/idempotency"
)

// maxTransactItems is DynamoDB's TransactWriteItems limit.
const maxTransactItems = 100

var (
	// ErrVersionConflict means the order changed since it was read.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrCartChanged means the cart changed while the order was being placed.
	ErrCartChanged = errors.New("cart changed during checkout")
	// ErrDuplicateRequest means the idempotency key was claimed by another request.
	ErrDuplicateRequest = errors.New("idempotency key already claimed")
	// ErrTooManyProducts means a single write would exceed the transaction limit.
	ErrTooManyProducts = errors.New("too many products for one transaction")
)

// StockError reports the product whose stock condition failed.
type StockError struct {
	ProductID string
}

func (e *StockError) Error() string {
	return fmt.Sprintf("stock condition failed for product %s", e.ProductID)
}

func (e *StockError) Unwrap() error { return catalog.ErrInsufficientStock }

// StockChange moves a product's stock. Negative deltas reserve and only
// apply while the product is active with enough stock; positive deltas
// restock.
type StockChange struct {
	ProductID string
	Delta     int
}

// CreateRequest is everything written atomically when an order is placed.
type CreateRequest struct {
	Order          *Order
	Stock          []StockChange
	Cart           *cart.Cart // pruned cart to write, nil to leave the cart alone
	CartVersion    int64
	IdempotencyKey string
}

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, req CreateRequest) error
	Get(ctx context.Context, orderID string) (*Order, error)
	Update(ctx context.Context, o *Order, expected int64, stock []StockChange) error
	ListByCustomer(ctx context.Context, email string) ([]Order, error)
	ListByStoreEmail(ctx context.Context, email string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
}

// StoreConfig names the tables and collaborators of the DynamoDB store.
type StoreConfig struct {
	TableName     string
	CustomerIndex string
	Ledger        *catalog.Ledger
	Carts         *cart.DynamoStore
	Keys          *idempotency.Store
}

// Store encapsulates operations on the orders table.
type Store struct {
	client        aws.DynamoDBAPI
	tableName     string
	customerIndex string
	ledger        *catalog.Ledger
	carts         *cart.DynamoStore
	keys          *idempotency.Store
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, cfg StoreConfig) *Store {
	return &Store{
		client:        client,
		tableName:     cfg.TableName,
		customerIndex: cfg.CustomerIndex,
		ledger:        cfg.Ledger,
		carts:         cfg.Carts,
		keys:          cfg.Keys,
	}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// txSlot tells which error a cancelled transaction item maps to.
type txSlot struct {
	err error
}

func (s *Store) stockItems(stock []StockChange, slots []txSlot) ([]types.TransactWriteItem, []txSlot) {
	items := make([]types.TransactWriteItem, 0, len(stock))
	for _, ch := range stock {
		switch {
		case ch.Delta < 0:
			items = append(items, s.ledger.ReserveItem(ch.ProductID, -ch.Delta))
		case ch.Delta > 0:
			items = append(items, s.ledger.RestockItem(ch.ProductID, ch.Delta))
		default:
			continue
		}
		slots = append(slots, txSlot{err: &StockError{ProductID: ch.ProductID}})
	}
	return items, slots
}

// Create writes the order, reserves its stock, prunes the cart and claims
// the idempotency key in one transaction. Nothing is applied on failure.
func (s *Store) Create(ctx context.Context, req CreateRequest) error {
	o := req.Order
	o.Version = 1
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	tx := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	}}
	slots := []txSlot{{err: fmt.Errorf("order %s already exists", o.OrderID)}}

	stockTx, slots := s.stockItems(req.Stock, slots)
	tx = append(tx, stockTx...)

	if req.Cart != nil {
		cartTx, err := s.carts.WriteItem(req.Cart, req.CartVersion)
		if err != nil {
			return err
		}
		tx = append(tx, cartTx)
		slots = append(slots, txSlot{err: ErrCartChanged})
	}
	if req.IdempotencyKey != "" {
		claim, err := s.keys.ClaimItem(req.IdempotencyKey, o.OrderID)
		if err != nil {
			return err
		}
		tx = append(tx, claim)
		slots = append(slots, txSlot{err: ErrDuplicateRequest})
	}

	if len(tx) > maxTransactItems {
		return ErrTooManyProducts
	}
	if err := s.transact(ctx, tx, slots); err != nil {
		return err
	}
	if req.Cart != nil {
		req.Cart.Version = req.CartVersion + 1
	}
	return nil
}

// Update replaces the order if its stored version equals expected and
// applies stock changes in the same transaction. o.Version is bumped on
// success.
func (s *Store) Update(ctx context.Context, o *Order, expected int64, stock []StockChange) error {
	next := *o
	next.Version = expected + 1
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	put := &types.Put{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("version = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		},
	}

	if len(stock) == 0 {
		_, err := s.client.PutItem(ctx, &dyn.PutItemInput{
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
			return fmt.Errorf("put order: %w", err)
		}
		o.Version = next.Version
		return nil
	}

	tx := []types.TransactWriteItem{{Put: put}}
	slots := []txSlot{{err: ErrVersionConflict}}
	stockTx, slots := s.stockItems(stock, slots)
	tx = append(tx, stockTx...)
	if len(tx) > maxTransactItems {
		return ErrTooManyProducts
	}
	if err := s.transact(ctx, tx, slots); err != nil {
		return err
	}
	o.Version = next.Version
	return nil
}

func (s *Store) transact(ctx context.Context, tx []types.TransactWriteItem, slots []txSlot) error {
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: tx})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("transact write: %w", err)
	}
	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil || i >= len(slots) {
			continue
		}
		switch *reason.Code {
		case "ConditionalCheckFailed":
			return slots[i].err
		case "TransactionConflict":
			return ErrVersionConflict
		}
	}
	return fmt.Errorf("transaction canceled: %w", err)
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: boolPtr(true),
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

// ListByCustomer returns a customer's orders, newest first, through the
// customer_email/created_at index.
func (s *Store) ListByCustomer(ctx context.Context, email string) ([]Order, error) {
	var orders []Order
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              &s.customerIndex,
			KeyConditionExpression: awsString("customer_email = :e"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":e": &types.AttributeValueMemberS{Value: email},
			},
			ScanIndexForward:  boolPtr(false),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		page, err := unmarshalOrders(out.Items)
		if err != nil {
			return nil, err
		}
		orders = append(orders, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sortNewestFirst(orders)
	return orders, nil
}

// ListByStoreEmail returns every order with a store owned by email.
func (s *Store) ListByStoreEmail(ctx context.Context, email string) ([]Order, error) {
	return s.scan(ctx, &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: awsString("contains(store_emails, :e)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberS{Value: email},
		},
	})
}

// ListAll returns every order, newest first.
func (s *Store) ListAll(ctx context.Context) ([]Order, error) {
	return s.scan(ctx, &dyn.ScanInput{TableName: &s.tableName})
}

func (s *Store) scan(ctx context.Context, in *dyn.ScanInput) ([]Order, error) {
	var orders []Order
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		page, err := unmarshalOrders(out.Items)
		if err != nil {
			return nil, err
		}
		orders = append(orders, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	sortNewestFirst(orders)
	return orders, nil
}

func unmarshalOrders(items []map[string]types.AttributeValue) ([]Order, error) {
	orders := make([]Order, 0, len(items))
	for _, item := range items {
		var o Order
		if err := attributevalue.UnmarshalMap(item, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func sortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func awsString(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
