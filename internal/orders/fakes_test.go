package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/imrishuroy/go-marketplace-orders/internal/cart"
	"github.com/imrishuroy/go-marketplace-orders/internal/catalog"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
	"github.com/imrishuroy/go-marketplace-orders/internal/sellers"
	"github.com/stretchr/testify/require"
)

// fakeCatalog holds products and their live stock.
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]catalog.Product
}

func (f *fakeCatalog) GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]catalog.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeCatalog) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

type fakeCarts struct {
	mu    sync.Mutex
	carts map[string]cart.Cart
}

func (f *fakeCarts) Get(ctx context.Context, email string) (*cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[email]
	if !ok {
		return nil, nil
	}
	c.Items = append([]cart.Item(nil), c.Items...)
	return &c, nil
}

// memRepo applies creates and updates all-or-nothing against the fake
// catalog and carts, mirroring the DynamoDB transactions.
type memRepo struct {
	mu         sync.Mutex
	orders     map[string]Order
	catalog    *fakeCatalog
	carts      *fakeCarts
	keys       map[string]string
	createErrs []error
	creates    int
	updates    int
}

// copyOrder round-trips through the DynamoDB codec so stored orders never
// alias the service's copy.
func copyOrder(o Order) Order {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		panic(err)
	}
	var out Order
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		panic(err)
	}
	return out
}

func (m *memRepo) checkStock(stock []StockChange) error {
	for _, ch := range stock {
		p, ok := m.catalog.products[ch.ProductID]
		if !ok {
			return &StockError{ProductID: ch.ProductID}
		}
		if ch.Delta < 0 && (!p.Active() || p.Stock < -ch.Delta) {
			return &StockError{ProductID: ch.ProductID}
		}
	}
	return nil
}

func (m *memRepo) applyStock(stock []StockChange) {
	for _, ch := range stock {
		p := m.catalog.products[ch.ProductID]
		p.Stock += ch.Delta
		m.catalog.products[ch.ProductID] = p
	}
}

func (m *memRepo) Create(ctx context.Context, req CreateRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog.mu.Lock()
	defer m.catalog.mu.Unlock()
	m.creates++

	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := m.orders[req.Order.OrderID]; ok {
		return fmt.Errorf("order %s already exists", req.Order.OrderID)
	}
	if err := m.checkStock(req.Stock); err != nil {
		return err
	}
	if req.Cart != nil {
		if cur, ok := m.carts.carts[req.Cart.Email]; !ok || cur.Version != req.CartVersion {
			return ErrCartChanged
		}
	}
	if req.IdempotencyKey != "" {
		if _, ok := m.keys[req.IdempotencyKey]; ok {
			return ErrDuplicateRequest
		}
	}

	m.applyStock(req.Stock)
	if req.Cart != nil {
		req.Cart.Version = req.CartVersion + 1
		stored := *req.Cart
		stored.Items = append([]cart.Item(nil), req.Cart.Items...)
		m.carts.carts[req.Cart.Email] = stored
	}
	if req.IdempotencyKey != "" {
		m.keys[req.IdempotencyKey] = req.Order.OrderID
	}
	req.Order.Version = 1
	m.orders[req.Order.OrderID] = copyOrder(*req.Order)
	return nil
}

func (m *memRepo) Get(ctx context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	c := copyOrder(o)
	return &c, nil
}

func (m *memRepo) Update(ctx context.Context, o *Order, expected int64, stock []StockChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog.mu.Lock()
	defer m.catalog.mu.Unlock()

	cur, ok := m.orders[o.OrderID]
	if !ok || cur.Version != expected {
		return ErrVersionConflict
	}
	if err := m.checkStock(stock); err != nil {
		return err
	}
	m.updates++
	m.applyStock(stock)
	o.Version = expected + 1
	m.orders[o.OrderID] = copyOrder(*o)
	return nil
}

func (m *memRepo) list(keep func(Order) bool) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sortNewestFirst(out)
	return out
}

func (m *memRepo) ListByCustomer(ctx context.Context, email string) ([]Order, error) {
	return m.list(func(o Order) bool { return o.CustomerEmail == email }), nil
}

func (m *memRepo) ListByStoreEmail(ctx context.Context, email string) ([]Order, error) {
	return m.list(func(o Order) bool {
		for _, e := range o.StoreEmails {
			if e == email {
				return true
			}
		}
		return false
	}), nil
}

func (m *memRepo) ListAll(ctx context.Context) ([]Order, error) {
	return m.list(func(Order) bool { return true }), nil
}

type fakeSellers map[string]sellers.Seller

func (f fakeSellers) FindByID(ctx context.Context, id string) (*sellers.Seller, error) {
	s, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type event struct {
	eventType string
	payload   map[string]interface{}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeEvents) Publish(ctx context.Context, eventType string, payload interface{}, attrs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	f.events = append(f.events, event{eventType: eventType, payload: m})
	return nil
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.eventType)
	}
	return out
}

type fakePayments struct {
	intents []payments.IntentRequest
	refunds []payments.RefundRequest
	err     error
}

func (f *fakePayments) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.intents = append(f.intents, req)
	return &payments.Intent{IntentID: "pi_1", OrderID: req.OrderID, ClientSecret: "pi_1_secret"}, nil
}

func (f *fakePayments) Refund(ctx context.Context, req payments.RefundRequest) error {
	if f.err != nil {
		return f.err
	}
	f.refunds = append(f.refunds, req)
	return nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	values map[string]float64
}

func (f *fakeMetrics) Count(ctx context.Context, name string, n float64) { f.add(name, n) }

func (f *fakeMetrics) Amount(ctx context.Context, name string, v float64) { f.add(name, v) }

func (f *fakeMetrics) add(name string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[string]float64{}
	}
	f.values[name] += v
}

const (
	customerEmail = "rahim@example.com"
	fashionEmail  = "fashionhub@example.com"
	gadgetEmail   = "electronics@example.com"
)

type harness struct {
	svc      *Service
	repo     *memRepo
	catalog  *fakeCatalog
	carts    *fakeCarts
	events   *fakeEvents
	payments *fakePayments
	metrics  *fakeMetrics
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

// newHarness stocks two stores: Fashion Hub in Dhaka and Electronics World
// in Chattogram.
func newHarness(t *testing.T) *harness {
	t.Helper()
	cat := &fakeCatalog{products: map[string]catalog.Product{
		"tshirt": {ProductID: "tshirt", Name: "Cotton T-Shirt", Price: 500, Discount: 10, Stock: 10, Status: catalog.StatusActive, StoreID: "s1", StoreName: "Fashion Hub", Images: []string{"tshirt.jpg"}},
		"jeans":  {ProductID: "jeans", Name: "Denim Jeans", Price: 2000, Discount: 15, Stock: 4, Status: catalog.StatusActive, StoreID: "s1", StoreName: "Fashion Hub"},
		"mouse":  {ProductID: "mouse", Name: "Wireless Mouse", Price: 800, Stock: 3, Status: catalog.StatusActive, StoreID: "s2", StoreName: "Electronics World"},
		"cable":  {ProductID: "cable", Name: "USB-C Cable", Price: 300, Discount: 5, Stock: 20, Status: catalog.StatusActive, StoreID: "s2", StoreName: "Electronics World"},
		"old":    {ProductID: "old", Name: "Retired Lamp", Price: 100, Stock: 5, Status: catalog.StatusInactive, StoreID: "s2"},
	}}
	carts := &fakeCarts{carts: map[string]cart.Cart{}}
	repo := &memRepo{orders: map[string]Order{}, catalog: cat, carts: carts, keys: map[string]string{}}
	events := &fakeEvents{}
	pays := &fakePayments{}
	metrics := &fakeMetrics{}

	svc := NewService(Dependencies{
		Repo:     repo,
		Products: cat,
		Sellers: fakeSellers{
			"s1": {SellerID: "s1", StoreName: "Fashion Hub", Email: fashionEmail, District: "Dhaka"},
			"s2": {SellerID: "s2", StoreName: "Electronics World", Email: gadgetEmail, District: "Chattogram"},
		},
		Carts:    carts,
		Events:   events,
		Payments: pays,
		Metrics:  metrics,
		Pricing: Pricing{
			CommissionPercent:     10,
			CashPaymentFee:        20,
			DeliveryChargeInside:  80,
			DeliveryChargeOutside: 150,
		},
	})
	svc.nowFunc = func() time.Time { return time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC) }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return &harness{svc: svc, repo: repo, catalog: cat, carts: carts, events: events, payments: pays, metrics: metrics}
}

var customer = Identity{Email: customerEmail, Role: RoleCustomer}

func dhakaAddress() Address {
	return Address{Name: "Rahim Uddin", Phone: "01712345678", Address: "House 123, Road 4", Thana: "Mirpur", District: "Dhaka", Region: "Dhaka Division"}
}

// twoStoreInput orders two red M t-shirts from s1 and one mouse from s2.
func twoStoreInput() CreateInput {
	return CreateInput{
		CustomerEmail:   customerEmail,
		ShippingAddress: dhakaAddress(),
		Stores: []StoreRequest{
			{StoreID: "s1", Items: []ItemRequest{{ProductID: "tshirt", Quantity: 2, UnitPrice: 500, Color: strPtr("red"), Size: strPtr("M")}}},
			{StoreID: "s2", Items: []ItemRequest{{ProductID: "mouse", Quantity: 1, UnitPrice: 800}}},
		},
	}
}

func (h *harness) placeOrder(t *testing.T, in CreateInput) *Order {
	t.Helper()
	o, err := h.svc.CreateOrder(context.Background(), customer, in)
	require.NoError(t, err)
	return o
}

func (h *harness) stored(t *testing.T, id string) Order {
	t.Helper()
	o, err := h.repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return *o
}

func withStock(p catalog.Product, stock int) catalog.Product {
	p.Stock = stock
	return p
}
