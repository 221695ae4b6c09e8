package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/imrishuroy/go-marketplace-orders/internal/cart"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_TwoStores(t *testing.T) {
	h := newHarness(t)
	h.carts.carts[customerEmail] = cart.Cart{
		Email:   customerEmail,
		Version: 4,
		Items: []cart.Item{
			{ProductID: "tshirt", Quantity: 2, Color: strPtr("red"), Size: strPtr("M")},
			{ProductID: "tshirt", Quantity: 1, Color: strPtr("blue")},
			{ProductID: "mouse", Quantity: 1},
		},
	}

	o := h.placeOrder(t, twoStoreInput())

	assert.Equal(t, StatusPending, o.OrderStatus)
	assert.Equal(t, PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, dhakaAddress(), o.BillingAddress, "billing defaults to shipping")
	assert.ElementsMatch(t, []string{fashionEmail, gadgetEmail}, o.StoreEmails)
	require.Len(t, o.Stores, 2)

	fashion := o.Stores[0]
	assert.Equal(t, "Fashion Hub", fashion.StoreName)
	assert.Equal(t, fashionEmail, fashion.StoreEmail)
	assert.Equal(t, 80.0, fashion.DeliveryCharge, "same district")
	require.Len(t, fashion.Items, 1)
	line := fashion.Items[0]
	assert.Equal(t, 450.0, line.DiscountedPrice)
	assert.Equal(t, 900.0, line.Subtotal)
	assert.Equal(t, ItemActive, line.Status)
	assert.Equal(t, "tshirt.jpg", line.ProductImage)
	assert.Equal(t, 900.0, fashion.StoreTotal)
	assert.Equal(t, 90.0, fashion.PlatformCommissionAmount)
	assert.Equal(t, 80.0, fashion.RiderAmount)
	assert.Equal(t, 810.0, fashion.SellerAmount)

	gadgets := o.Stores[1]
	assert.Equal(t, 150.0, gadgets.DeliveryCharge, "other district")
	assert.Equal(t, 800.0, gadgets.StoreTotal)
	assert.Equal(t, 720.0, gadgets.SellerAmount)

	assert.Equal(t, 1700.0, o.ItemsTotal)
	assert.Equal(t, 230.0, o.TotalDeliveryCharge)
	assert.Equal(t, 1930.0, o.TotalAmount)
	assert.NotNil(t, o.StockReservedAt)

	assert.Equal(t, 8, h.catalog.stock("tshirt"))
	assert.Equal(t, 2, h.catalog.stock("mouse"))

	c := h.carts.carts[customerEmail]
	require.Len(t, c.Items, 1, "ordered lines are pruned from the cart")
	assert.Equal(t, "blue", *c.Items[0].Color)
	assert.Equal(t, int64(5), c.Version)

	stored := h.stored(t, o.OrderID)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, []string{EventOrderPlaced}, h.events.types())
	assert.Equal(t, 1.0, h.metrics.values[MetricOrdersPlaced])
	assert.Equal(t, 1930.0, h.metrics.values[MetricOrderValue])
}

func TestCreateOrder_RejectsWithoutWriting(t *testing.T) {
	cases := []struct {
		name   string
		who    Identity
		mutate func(in *CreateInput)
		kind   apperr.Kind
	}{
		{
			name: "other customer",
			who:  Identity{Email: "karim@example.com", Role: RoleCustomer},
			kind: apperr.KindForbidden,
		},
		{
			name:   "unknown product",
			mutate: func(in *CreateInput) { in.Stores[0].Items[0].ProductID = "ghost" },
			kind:   apperr.KindNotFound,
		},
		{
			name: "inactive product",
			mutate: func(in *CreateInput) {
				in.Stores[1].Items = append(in.Stores[1].Items, ItemRequest{ProductID: "old", Quantity: 1, UnitPrice: 100})
			},
			kind: apperr.KindUnavailable,
		},
		{
			name:   "more than stock",
			mutate: func(in *CreateInput) { in.Stores[1].Items[0].Quantity = 4 },
			kind:   apperr.KindInsufficientStock,
		},
		{
			name: "variants together exceed stock",
			mutate: func(in *CreateInput) {
				in.Stores[1].Items = []ItemRequest{
					{ProductID: "mouse", Quantity: 2, UnitPrice: 800, Color: strPtr("black")},
					{ProductID: "mouse", Quantity: 2, UnitPrice: 800, Color: strPtr("white")},
				}
			},
			kind: apperr.KindInsufficientStock,
		},
		{
			name:   "stale price",
			mutate: func(in *CreateInput) { in.Stores[0].Items[0].UnitPrice = 499.5 },
			kind:   apperr.KindPriceMismatch,
		},
		{
			name:   "product from another store",
			mutate: func(in *CreateInput) { in.Stores[0].Items[0] = ItemRequest{ProductID: "cable", Quantity: 1, UnitPrice: 300} },
			kind:   apperr.KindValidation,
		},
		{
			name: "unknown store",
			mutate: func(in *CreateInput) {
				in.Stores = append(in.Stores, StoreRequest{StoreID: "s9", Items: []ItemRequest{{ProductID: "cable", Quantity: 1, UnitPrice: 300}}})
			},
			kind: apperr.KindValidation,
		},
		{
			name:   "no stores",
			mutate: func(in *CreateInput) { in.Stores = nil },
			kind:   apperr.KindValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			in := twoStoreInput()
			if tc.mutate != nil {
				tc.mutate(&in)
			}
			who := customer
			if tc.who.Email != "" {
				who = tc.who
			}

			_, err := h.svc.CreateOrder(context.Background(), who, in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err), err.Error())
			assert.Zero(t, h.repo.creates)
			assert.Equal(t, 10, h.catalog.stock("tshirt"))
			assert.Equal(t, 3, h.catalog.stock("mouse"))
			assert.Empty(t, h.events.types())
		})
	}
}

func TestCreateOrder_PriceWithinTolerance(t *testing.T) {
	h := newHarness(t)
	in := twoStoreInput()
	in.Stores[0].Items[0].UnitPrice = 500.004

	o := h.placeOrder(t, in)
	assert.Equal(t, 500.0, o.Stores[0].Items[0].UnitPrice)
}

func TestCreateOrder_UnknownSeller(t *testing.T) {
	h := newHarness(t)
	p := h.catalog.products["cable"]
	p.ProductID, p.StoreID = "orphan", "s9"
	h.catalog.products["orphan"] = p

	in := twoStoreInput()
	in.Stores = append(in.Stores, StoreRequest{StoreID: "s9", Items: []ItemRequest{{ProductID: "orphan", Quantity: 1, UnitPrice: 300}}})
	_, err := h.svc.CreateOrder(context.Background(), customer, in)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Zero(t, h.repo.creates)
}

func TestCreateOrder_RetriesWhenCartChanges(t *testing.T) {
	h := newHarness(t)
	h.carts.carts[customerEmail] = cart.Cart{Email: customerEmail, Version: 1, Items: []cart.Item{{ProductID: "mouse", Quantity: 1}}}
	h.repo.createErrs = []error{ErrCartChanged}

	o := h.placeOrder(t, twoStoreInput())
	assert.Equal(t, 2, h.repo.creates)
	assert.Empty(t, h.carts.carts[customerEmail].Items)
	assert.NotEmpty(t, o.OrderID)

	h.repo.createErrs = []error{ErrCartChanged, ErrCartChanged, ErrCartChanged}
	_, err := h.svc.CreateOrder(context.Background(), customer, twoStoreInput())
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCreateOrder_StockRaceAndDuplicateKey(t *testing.T) {
	h := newHarness(t)
	h.repo.createErrs = []error{&StockError{ProductID: "mouse"}}

	_, err := h.svc.CreateOrder(context.Background(), customer, twoStoreInput())
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindInsufficientStock, appErr.Kind)
	assert.Equal(t, "mouse", appErr.Detail["productId"])

	in := twoStoreInput()
	in.IdempotencyKey = "rahim@example.com#k1"
	h.placeOrder(t, in)
	_, err = h.svc.CreateOrder(context.Background(), customer, in)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
	assert.Equal(t, "duplicate_request", appErr.Detail["reason"])
	assert.Equal(t, 8, h.catalog.stock("tshirt"), "the duplicate reserved nothing")
}

func TestConfirmOrder_CashOnDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())

	confirmed, err := h.svc.ConfirmOrder(ctx, o.OrderID, customerEmail)
	require.NoError(t, err)
	assert.Equal(t, MethodCashOnDelivery, confirmed.PaymentMethod)
	assert.Equal(t, StatusPending, confirmed.OrderStatus)
	assert.Equal(t, 20.0, confirmed.CashPaymentFee)
	assert.Equal(t, 1950.0, confirmed.TotalAmount)
	assert.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, 8, h.catalog.stock("tshirt"), "stock was reserved at creation and is not taken again")
	assert.Equal(t, 2, h.catalog.stock("mouse"))

	_, err = h.svc.ConfirmOrder(ctx, o.OrderID, customerEmail)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
	assert.Equal(t, "already_confirmed", appErr.Detail["reason"])
	assert.Equal(t, 1950.0, h.stored(t, o.OrderID).TotalAmount)

	_, err = h.svc.ConfirmOrder(ctx, o.OrderID, "karim@example.com")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = h.svc.ConfirmOrder(ctx, "missing", customerEmail)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestConfirmOrder_ReservesUnreservedOrderOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())

	legacy := h.stored(t, o.OrderID)
	legacy.StockReservedAt = nil
	h.repo.orders[o.OrderID] = legacy
	h.catalog.products["tshirt"] = withStock(h.catalog.products["tshirt"], 10)
	h.catalog.products["mouse"] = withStock(h.catalog.products["mouse"], 3)

	confirmed, err := h.svc.ConfirmOrder(ctx, o.OrderID, customerEmail)
	require.NoError(t, err)
	assert.NotNil(t, confirmed.StockReservedAt)
	assert.Equal(t, 8, h.catalog.stock("tshirt"))
	assert.Equal(t, 2, h.catalog.stock("mouse"))

	paid, err := h.svc.RecordPayment(ctx, o.OrderID, "txn_1", 1950)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, 8, h.catalog.stock("tshirt"), "payment does not reserve again")
}

func TestConfirmOrder_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())
	_, err := h.svc.CancelOrderItems(ctx, o.OrderID, customer, []CancelRequest{
		{StoreID: "s1", Items: []CancelLine{{ProductID: "tshirt", Color: strPtr("red"), Size: strPtr("M")}}},
		{StoreID: "s2", Items: []CancelLine{{ProductID: "mouse"}}},
	}, "changed my mind")
	require.NoError(t, err)

	_, err = h.svc.ConfirmOrder(ctx, o.OrderID, customerEmail)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRecordPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())

	paid, err := h.svc.RecordPayment(ctx, o.OrderID, "txn_1", 1930)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, MethodCard, paid.PaymentMethod)
	assert.Equal(t, "txn_1", paid.TransactionID)
	updates := h.repo.updates

	again, err := h.svc.RecordPayment(ctx, o.OrderID, "txn_1", 1930)
	require.NoError(t, err)
	assert.Equal(t, "txn_1", again.TransactionID)
	assert.Equal(t, updates, h.repo.updates, "replay writes nothing")

	_, err = h.svc.RecordPayment(ctx, o.OrderID, "txn_2", 1930)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = h.svc.ConfirmOrder(ctx, o.OrderID, customerEmail)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "paid orders cannot switch to cash")
}

func TestRecordPayment_RefundsChargeForCancelledOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())
	requests := append(cancelTShirts(), CancelRequest{StoreID: "s2", Items: []CancelLine{{ProductID: "mouse", ItemIndex: intPtr(0)}}})
	_, err := h.svc.CancelOrderItems(ctx, o.OrderID, customer, requests, "changed my mind")
	require.NoError(t, err)
	updates := h.repo.updates

	_, err = h.svc.RecordPayment(ctx, o.OrderID, "txn_9", 1930)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
	assert.Equal(t, true, appErr.Detail["refunded"])
	assert.Equal(t, RefundOrderCancelled, appErr.Detail["reason"])

	require.Len(t, h.payments.refunds, 1)
	assert.Equal(t, payments.RefundRequest{OrderID: o.OrderID, Amount: 1930, Reference: "txn_9", Reason: RefundOrderCancelled}, h.payments.refunds[0])
	assert.Contains(t, h.events.types(), EventPaymentRefunded)
	assert.Equal(t, updates, h.repo.updates, "the order is left untouched")
	assert.Equal(t, PaymentUnpaid, h.stored(t, o.OrderID).PaymentStatus)
}

func TestRecordPayment_RefundsSecondCharge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())
	_, err := h.svc.RecordPayment(ctx, o.OrderID, "txn_1", 1930)
	require.NoError(t, err)

	// the refund request cannot be sent: retry later
	h.payments.err = errors.New("queue unavailable")
	_, err = h.svc.RecordPayment(ctx, o.OrderID, "txn_2", 1930)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Empty(t, h.payments.refunds)

	h.payments.err = nil
	_, err = h.svc.RecordPayment(ctx, o.OrderID, "txn_2", 1930)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
	assert.Equal(t, true, appErr.Detail["refunded"])
	assert.Equal(t, "txn_1", appErr.Detail["paidTransactionId"])

	require.Len(t, h.payments.refunds, 1)
	assert.Equal(t, "txn_2", h.payments.refunds[0].Reference)
	assert.Equal(t, RefundDuplicatePayment, h.payments.refunds[0].Reason)
	assert.Equal(t, 1930.0, h.payments.refunds[0].Amount)
	assert.Equal(t, "txn_1", h.stored(t, o.OrderID).TransactionID)
}

func TestRequestPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())

	intent, err := h.svc.RequestPayment(ctx, o.OrderID, customerEmail)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.IntentID)
	require.Len(t, h.payments.intents, 1)
	assert.Equal(t, 1930.0, h.payments.intents[0].Amount, "amount comes from the order, not the client")

	_, err = h.svc.RequestPayment(ctx, o.OrderID, "karim@example.com")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	h.payments.err = payments.ErrDisabled
	_, err = h.svc.RequestPayment(ctx, o.OrderID, customerEmail)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}
