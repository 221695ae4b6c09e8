package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/imrishuroy/go-marketplace-orders/internal/cart"
	"github.com/imrishuroy/go-marketplace-orders/internal/catalog"
	"github.com/imrishuroy/go-marketplace-orders/internal/money"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
	"github.com/imrishuroy/go-marketplace-orders/internal/sellers"
)

// maxCartAttempts bounds retries when the cart changes under a checkout.
const maxCartAttempts = 3

// ItemRequest is one line of a checkout payload.
type ItemRequest struct {
	ProductID string
	Quantity  int
	UnitPrice float64
	Color     *string
	Size      *string
}

// StoreRequest groups the lines bought from one store.
type StoreRequest struct {
	StoreID string
	Items   []ItemRequest
}

// ClientTotals are the totals the storefront computed. They are compared
// with the server's figures for diagnostics only.
type ClientTotals struct {
	ItemsTotal          float64
	TotalDeliveryCharge float64
	TotalAmount         float64
}

// CreateInput is a checkout payload.
type CreateInput struct {
	CustomerEmail   string
	ShippingAddress Address
	BillingAddress  *Address
	Stores          []StoreRequest
	ClientTotals    *ClientTotals
	IdempotencyKey  string
}

// CreateOrder validates the payload against live catalog data, prices it per
// store and then, in one transaction, inserts the order, reserves its stock
// and removes the ordered lines from the cart. No write happens unless
// every line passes.
func (s *Service) CreateOrder(ctx context.Context, who Identity, in CreateInput) (*Order, error) {
	const op = "orders.CreateOrder"
	email := strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	if email != who.Email {
		return nil, apperr.Forbidden(op, "You can only place orders for your own account")
	}
	if len(in.Stores) == 0 {
		return nil, apperr.Validation(op, "Order must contain at least one store")
	}

	o, err := s.buildOrder(ctx, op, email, in)
	if err != nil {
		s.count(ctx, MetricCheckoutRejects, 1)
		return nil, err
	}
	if in.ClientTotals != nil {
		logTotalsMismatch(o, *in.ClientTotals)
	}

	stock := reserveStock(o, o.CreatedAt)
	for attempt := 0; ; attempt++ {
		req := CreateRequest{Order: o, Stock: stock, IdempotencyKey: in.IdempotencyKey}
		if err := s.pruneCart(ctx, op, o, &req); err != nil {
			return nil, err
		}
		err := s.repo.Create(ctx, req)
		if err == nil {
			break
		}
		if errors.Is(err, ErrCartChanged) && attempt+1 < maxCartAttempts {
			log.Printf("[orders] cart changed during checkout email=%s attempt=%d", email, attempt+1)
			continue
		}
		if errors.Is(err, ErrCartChanged) {
			return nil, apperr.Conflict(op, "Cart was modified concurrently, please retry")
		}
		return nil, storeError(op, err)
	}

	log.Printf("[orders] placed order=%s customer=%s stores=%d total=%s",
		o.OrderID, email, len(o.Stores), money.String(o.TotalAmount))
	s.publish(ctx, EventOrderPlaced, o, map[string]interface{}{"storeEmails": o.StoreEmails})
	s.count(ctx, MetricOrdersPlaced, 1)
	s.amount(ctx, MetricOrderValue, o.TotalAmount)
	return o, nil
}

func (s *Service) buildOrder(ctx context.Context, op, email string, in CreateInput) (*Order, error) {
	var ids []string
	demand := map[string]int{}
	seenStores := map[string]bool{}
	for _, st := range in.Stores {
		if st.StoreID == "" {
			return nil, apperr.Validation(op, "Store ID is required")
		}
		if seenStores[st.StoreID] {
			return nil, apperr.Validation(op, "Each store may appear only once").WithDetail(map[string]any{"storeId": st.StoreID})
		}
		seenStores[st.StoreID] = true
		if len(st.Items) == 0 {
			return nil, apperr.Validation(op, "Store has no items").WithDetail(map[string]any{"storeId": st.StoreID})
		}
		for _, it := range st.Items {
			if it.Quantity <= 0 {
				return nil, apperr.Validation(op, "Quantity must be at least 1").WithDetail(map[string]any{"productId": it.ProductID})
			}
			if _, ok := demand[it.ProductID]; !ok {
				ids = append(ids, it.ProductID)
			}
			demand[it.ProductID] += it.Quantity
		}
	}

	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	for _, st := range in.Stores {
		for _, it := range st.Items {
			p, ok := products[it.ProductID]
			if !ok {
				return nil, apperr.NotFound(op, "Product not found").WithDetail(map[string]any{"productId": it.ProductID})
			}
			if !p.Active() {
				return nil, apperr.E(apperr.KindUnavailable, op, "Product is not available").WithDetail(map[string]any{
					"productId": p.ProductID, "productName": p.Name,
				})
			}
			if p.Stock < demand[p.ProductID] {
				return nil, apperr.E(apperr.KindInsufficientStock, op, "Insufficient stock").WithDetail(map[string]any{
					"productId": p.ProductID, "productName": p.Name,
					"available": p.Stock, "requested": demand[p.ProductID],
				})
			}
			if money.Differs(p.Price, it.UnitPrice) {
				return nil, apperr.E(apperr.KindPriceMismatch, op, "Product price has changed").WithDetail(map[string]any{
					"productId": p.ProductID, "productName": p.Name,
					"currentPrice": p.Price, "unitPrice": it.UnitPrice,
				})
			}
			if p.StoreID != st.StoreID {
				return nil, apperr.Validation(op, "Product does not belong to store").WithDetail(map[string]any{
					"productId": p.ProductID, "storeId": st.StoreID,
				})
			}
		}
	}
	if len(ids) > maxTransactItems-3 {
		return nil, apperr.Validation(op, "Too many products in one order")
	}

	now := s.now()
	billing := in.ShippingAddress
	if in.BillingAddress != nil {
		billing = *in.BillingAddress
	}
	o := &Order{
		OrderID:         s.newID(),
		CustomerEmail:   email,
		OrderStatus:     StatusPending,
		PaymentStatus:   PaymentUnpaid,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  billing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, st := range in.Stores {
		seller, err := s.sellers.FindByID(ctx, st.StoreID)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		if seller == nil {
			return nil, apperr.NotFound(op, "Store not found").WithDetail(map[string]any{"storeId": st.StoreID})
		}
		o.Stores = append(o.Stores, s.buildStore(st, seller, products, in.ShippingAddress))
	}
	o.StoreEmails = storeEmails(o.Stores)
	recomputeTotals(o)
	return o, nil
}

func (s *Service) buildStore(req StoreRequest, seller *sellers.Seller, products map[string]catalog.Product, shipping Address) StoreOrder {
	name := seller.StoreName
	if name == "" {
		name = products[req.Items[0].ProductID].StoreName
	}
	st := StoreOrder{
		StoreID:            req.StoreID,
		StoreName:          name,
		StoreEmail:         strings.ToLower(seller.Email),
		StoreOrderStatus:   StatusPending,
		DeliveryCharge:     s.pricing.DeliveryCharge(seller, shipping),
		PlatformCommission: s.pricing.CommissionPercent,
	}
	for _, it := range req.Items {
		color, size := cart.Normalize(it.Color), cart.Normalize(it.Size)
		st.Items = append(st.Items, priceLine(products[it.ProductID], it.Quantity, color, size))
	}
	recomputeStore(&st)
	return st
}

// pruneCart loads the cart and, when it holds any ordered line, attaches the
// pruned copy to the create request.
func (s *Service) pruneCart(ctx context.Context, op string, o *Order, req *CreateRequest) error {
	if s.carts == nil {
		return nil
	}
	c, err := s.carts.Get(ctx, o.CustomerEmail)
	if err != nil {
		return apperr.Internal(op, err)
	}
	if c == nil {
		return nil
	}
	var keys []cart.Key
	for _, st := range o.Stores {
		for _, it := range st.Items {
			keys = append(keys, cart.NewKey(it.ProductID, it.Color, it.Size))
		}
	}
	if !c.Remove(keys...) {
		return nil
	}
	c.UpdatedAt = o.CreatedAt
	req.Cart = c
	req.CartVersion = c.Version
	return nil
}

func logTotalsMismatch(o *Order, client ClientTotals) {
	if money.Differs(o.ItemsTotal, client.ItemsTotal) ||
		money.Differs(o.TotalDeliveryCharge, client.TotalDeliveryCharge) ||
		money.Differs(o.TotalAmount, client.TotalAmount) {
		log.Printf("[orders] client totals differ order=%s items=%s/%s delivery=%s/%s total=%s/%s",
			o.OrderID,
			money.String(client.ItemsTotal), money.String(o.ItemsTotal),
			money.String(client.TotalDeliveryCharge), money.String(o.TotalDeliveryCharge),
			money.String(client.TotalAmount), money.String(o.TotalAmount))
	}
}

// ConfirmOrder switches an order to cash on delivery. It adds the cash
// handling fee and takes the stock reservation if the order does not hold
// one yet. An order that already has a payment method is AlreadyConfirmed.
func (s *Service) ConfirmOrder(ctx context.Context, orderID, email string) (*Order, error) {
	const op = "orders.ConfirmOrder"
	o, err := s.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerEmail != email {
		return nil, apperr.Forbidden(op, "You can only confirm your own orders")
	}
	if o.OrderStatus == StatusCancelled {
		return nil, apperr.Conflict(op, "Order is cancelled")
	}
	if o.OrderStatus != StatusPending || o.PaymentStatus != PaymentUnpaid || o.PaymentMethod != "" {
		return nil, apperr.Conflict(op, "Order already confirmed").WithDetail(map[string]any{"reason": "already_confirmed"})
	}

	now := s.now()
	o.PaymentMethod = MethodCashOnDelivery
	o.CashPaymentFee = money.Round(s.pricing.CashPaymentFee)
	o.OrderStatus = StatusPending
	o.ConfirmedAt = &now
	recomputeTotals(o)
	stock := reserveStock(o, now)

	if err := s.save(ctx, op, o, stock); err != nil {
		return nil, err
	}
	log.Printf("[orders] confirmed cash on delivery order=%s total=%s reserved=%d", o.OrderID, money.String(o.TotalAmount), len(stock))
	s.publish(ctx, EventOrderConfirmed, o, map[string]interface{}{"paymentMethod": o.PaymentMethod})
	return o, nil
}

// RecordPayment marks an order paid by card. Replays with the same
// transaction id are no-ops.
func (s *Service) RecordPayment(ctx context.Context, orderID, transactionID string, amount float64) (*Order, error) {
	const op = "orders.RecordPayment"
	if transactionID == "" {
		return nil, apperr.Validation(op, "Transaction ID is required")
	}
	o, err := s.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid {
		if o.TransactionID == transactionID {
			return o, nil
		}
		return nil, s.refundCapture(ctx, op, o, transactionID, amount, RefundDuplicatePayment, "Order already paid")
	}
	if o.OrderStatus == StatusCancelled {
		return nil, s.refundCapture(ctx, op, o, transactionID, amount, RefundOrderCancelled, "Order is cancelled")
	}
	if money.Differs(amount, o.TotalAmount) {
		log.Printf("[orders] payment amount differs order=%s paid=%s due=%s", o.OrderID, money.String(amount), money.String(o.TotalAmount))
	}

	now := s.now()
	o.PaymentStatus = PaymentPaid
	o.PaymentMethod = MethodCard
	o.TransactionID = transactionID
	o.PaidAt = &now
	stock := reserveStock(o, now)

	if err := s.save(ctx, op, o, stock); err != nil {
		return nil, err
	}
	log.Printf("[orders] payment recorded order=%s txn=%s", o.OrderID, transactionID)
	s.publish(ctx, EventOrderPaid, o, map[string]interface{}{"transactionId": transactionID})
	return o, nil
}

// refundCapture sends back a charge the order cannot take. It returns a
// Conflict flagged "refunded" once the refund is requested, or an Internal
// error when the request could not be sent so the payment result is retried.
// The transaction id is the refund reference, so a retried request is
// deduplicated by the payment collaborator.
func (s *Service) refundCapture(ctx context.Context, op string, o *Order, transactionID string, amount float64, reason, message string) error {
	detail := map[string]any{"reason": reason, "transactionId": transactionID, "refunded": false}
	if o.TransactionID != "" {
		detail["paidTransactionId"] = o.TransactionID
	}
	if amount <= 0 {
		return apperr.Conflict(op, message).WithDetail(detail)
	}
	if s.payments == nil {
		return apperr.Internal(op, fmt.Errorf("no payment collaborator to refund %s", transactionID))
	}
	err := s.payments.Refund(ctx, payments.RefundRequest{
		OrderID:   o.OrderID,
		Amount:    money.Round(amount),
		Reference: transactionID,
		Reason:    reason,
	})
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("refund payment %s: %w", transactionID, err))
	}

	log.Printf("[orders] refunded unapplied payment order=%s txn=%s amount=%s reason=%s",
		o.OrderID, transactionID, money.String(amount), reason)
	s.publish(ctx, EventPaymentRefunded, o, map[string]interface{}{
		"transactionId": transactionID,
		"refundAmount":  money.Round(amount),
		"reason":        reason,
	})
	s.amount(ctx, MetricRefundAmount, amount)
	detail["refunded"] = true
	return apperr.Conflict(op, message).WithDetail(detail)
}

// RequestPayment asks the payment collaborator for a charge intent covering
// the order's current total.
func (s *Service) RequestPayment(ctx context.Context, orderID, email string) (*payments.Intent, error) {
	const op = "orders.RequestPayment"
	o, err := s.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerEmail != email {
		return nil, apperr.Forbidden(op, "You can only pay for your own orders")
	}
	if o.OrderStatus == StatusCancelled {
		return nil, apperr.Conflict(op, "Order is cancelled")
	}
	if o.PaymentStatus == PaymentPaid {
		return nil, apperr.Conflict(op, "Order already paid")
	}
	if o.PaymentMethod == MethodCashOnDelivery {
		return nil, apperr.Conflict(op, "Order is confirmed for cash on delivery")
	}
	intent, err := s.payments.CreateIntent(ctx, payments.IntentRequest{
		OrderID:       o.OrderID,
		CustomerEmail: o.CustomerEmail,
		Amount:        o.TotalAmount,
	})
	if err != nil {
		if errors.Is(err, payments.ErrDisabled) {
			return nil, apperr.E(apperr.KindUnavailable, op, "Online payment is not available")
		}
		return nil, apperr.Internal(op, err)
	}
	return intent, nil
}
