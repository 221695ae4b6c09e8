// Package orders builds orders from checkout payloads, moves store orders
// through their fulfilment states and cancels lines with refund
// bookkeeping. Stock moves in the same DynamoDB transaction as the order
// write that causes it.
package orders

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/imrishuroy/go-marketplace-orders/internal/cart"
	"github.com/imrishuroy/go-marketplace-orders/internal/catalog"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
	"github.com/imrishuroy/go-marketplace-orders/internal/sellers"
)

// Event types published on the orders queue.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderConfirmed     = "order.confirmed"
	EventOrderPaid          = "order.paid"
	EventStoreStatusChanged = "order.store_status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventPaymentRefunded    = "order.payment_refunded"
)

// Reasons for refunding a charge that could not be applied to its order.
const (
	RefundOrderCancelled   = "order_cancelled"
	RefundDuplicatePayment = "duplicate_payment"
)

// Metric names.
const (
	MetricOrdersPlaced    = "OrdersPlaced"
	MetricOrderValue      = "OrderValue"
	MetricLinesCancelled  = "OrderLinesCancelled"
	MetricRefundAmount    = "RefundAmount"
	MetricCheckoutRejects = "CheckoutRejected"
)

// Products is the read side of the stock ledger.
type Products interface {
	GetMany(ctx context.Context, productIDs []string) (map[string]catalog.Product, error)
}

// Carts reads the customer's cart so ordered lines can be pruned.
type Carts interface {
	Get(ctx context.Context, email string) (*cart.Cart, error)
}

// Events publishes order lifecycle events.
type Events interface {
	Publish(ctx context.Context, eventType string, payload interface{}, attributes map[string]string) error
}

// Payments is the outbound payment collaborator.
type Payments interface {
	CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error)
	Refund(ctx context.Context, req payments.RefundRequest) error
}

// Metrics records business metrics.
type Metrics interface {
	Count(ctx context.Context, name string, n float64)
	Amount(ctx context.Context, name string, v float64)
}

// Dependencies are the collaborators of the order service.
type Dependencies struct {
	Repo     Repository
	Products Products
	Sellers  sellers.Directory
	Carts    Carts
	Events   Events
	Payments Payments
	Metrics  Metrics
	Pricing  Pricing
}

// Service implements the order operations.
type Service struct {
	repo     Repository
	products Products
	sellers  sellers.Directory
	carts    Carts
	events   Events
	payments Payments
	metrics  Metrics
	pricing  Pricing
	nowFunc  func() time.Time
	newID    func() string
}

// NewService wires the order service.
func NewService(deps Dependencies) *Service {
	return &Service{
		repo:     deps.Repo,
		products: deps.Products,
		sellers:  deps.Sellers,
		carts:    deps.Carts,
		events:   deps.Events,
		payments: deps.Payments,
		metrics:  deps.Metrics,
		pricing:  deps.Pricing,
		nowFunc:  time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Identity is the authenticated caller.
type Identity struct {
	Email string
	Role  string
}

func (s *Service) now() time.Time { return s.nowFunc().UTC() }

func (s *Service) load(ctx context.Context, op, orderID string) (*Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if o == nil {
		return nil, apperr.NotFound(op, "Order not found")
	}
	return o, nil
}

// save writes o back under its current version and maps store errors.
func (s *Service) save(ctx context.Context, op string, o *Order, stock []StockChange) error {
	o.UpdatedAt = s.now()
	err := s.repo.Update(ctx, o, o.Version, stock)
	if err == nil {
		return nil
	}
	return storeError(op, err)
}

func storeError(op string, err error) error {
	var stockErr *StockError
	switch {
	case errors.Is(err, ErrVersionConflict):
		return apperr.Conflict(op, "Order was modified concurrently, please retry")
	case errors.As(err, &stockErr):
		return apperr.E(apperr.KindInsufficientStock, op, "Insufficient stock").WithDetail(map[string]any{
			"productId": stockErr.ProductID,
		})
	case errors.Is(err, ErrDuplicateRequest):
		return apperr.Conflict(op, "Request already processed").WithDetail(map[string]any{"reason": "duplicate_request"})
	case errors.Is(err, ErrTooManyProducts):
		return apperr.Validation(op, "Too many products in one order")
	}
	return apperr.Internal(op, err)
}

func (s *Service) publish(ctx context.Context, eventType string, o *Order, extra map[string]interface{}) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"orderId":       o.OrderID,
		"customerEmail": o.CustomerEmail,
		"orderStatus":   o.OrderStatus,
		"paymentStatus": o.PaymentStatus,
		"totalAmount":   o.TotalAmount,
	}
	for k, v := range extra {
		payload[k] = v
	}
	attrs := map[string]string{"order_id": o.OrderID}
	if err := s.events.Publish(ctx, eventType, payload, attrs); err != nil {
		log.Printf("[orders] publish %s failed order=%s err=%v", eventType, o.OrderID, err)
	}
}

func (s *Service) count(ctx context.Context, name string, n float64) {
	if s.metrics != nil {
		s.metrics.Count(ctx, name, n)
	}
}

func (s *Service) amount(ctx context.Context, name string, v float64) {
	if s.metrics != nil {
		s.metrics.Amount(ctx, name, v)
	}
}

// reserveStock is the single transition that takes an order's stock out of
// the ledger. It returns the reservations to write with the order and
// stamps the order so the reservation is never taken twice.
func reserveStock(o *Order, at time.Time) []StockChange {
	if o.StockReservedAt != nil {
		return nil
	}
	totals := map[string]int{}
	var order []string
	for _, st := range o.Stores {
		for _, it := range st.Items {
			if it.Cancelled() {
				continue
			}
			if _, ok := totals[it.ProductID]; !ok {
				order = append(order, it.ProductID)
			}
			totals[it.ProductID] += it.Quantity
		}
	}
	changes := make([]StockChange, 0, len(order))
	for _, id := range order {
		changes = append(changes, StockChange{ProductID: id, Delta: -totals[id]})
	}
	o.StockReservedAt = &at
	return changes
}
