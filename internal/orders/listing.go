package orders

import (
	"context"
	"strings"

	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// PageQuery selects a zero based page.
type PageQuery struct {
	Page  int
	Limit int
}

func (q PageQuery) normalize() PageQuery {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	return q
}

func paginate(orders []Order, q PageQuery) []Order {
	start := q.Page * q.Limit
	if start >= len(orders) {
		return []Order{}
	}
	end := start + q.Limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[start:end]
}

// SellerQuery filters a seller's orders.
type SellerQuery struct {
	PageQuery
	Status string // store status, "" or "all" for any
	Search string // product name, customer name or phone, or exact order id
}

// Page is one page of orders.
type Page struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}

// SellerPage is a page of a seller's orders plus per-status counts of all
// their store orders.
type SellerPage struct {
	Page
	Stats map[string]int `json:"stats"`
}

// Get returns an order the caller may see: its customer, a seller with a
// store in it, or an admin.
func (s *Service) Get(ctx context.Context, orderID string, who Identity) (*Order, error) {
	const op = "orders.Get"
	o, err := s.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case who.Role == RoleAdmin:
	case o.CustomerEmail == who.Email:
	case who.Role == RoleSeller && hasStoreEmail(o, who.Email):
	default:
		return nil, apperr.Forbidden(op, "You cannot view this order")
	}
	return o, nil
}

// ListMine returns the caller's orders, newest first.
func (s *Service) ListMine(ctx context.Context, email string) ([]Order, error) {
	const op = "orders.ListMine"
	orders, err := s.repo.ListByCustomer(ctx, email)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// ListForSeller returns the orders containing the seller's stores. Each
// order carries only the seller's own store entries.
func (s *Service) ListForSeller(ctx context.Context, email string, q SellerQuery) (*SellerPage, error) {
	const op = "orders.ListForSeller"
	all, err := s.repo.ListByStoreEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	stats := map[string]int{
		"all":           0,
		StatusPending:   0,
		StatusConfirmed: 0,
		StatusPrepared:  0,
		StatusShipped:   0,
		StatusDelivered: 0,
		StatusCancelled: 0,
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))
	status := strings.TrimSpace(q.Status)
	var matched []Order
	for _, o := range all {
		view := sellerView(o, email)
		if len(view.Stores) == 0 {
			continue
		}
		for _, st := range view.Stores {
			if _, ok := stats[st.StoreOrderStatus]; ok {
				stats[st.StoreOrderStatus]++
				stats["all"]++
			}
		}
		if status != "" && status != "all" && !hasStoreStatus(view, status) {
			continue
		}
		if search != "" && !matchesSearch(view, search) {
			continue
		}
		matched = append(matched, view)
	}

	pq := q.PageQuery.normalize()
	return &SellerPage{
		Page: Page{
			Orders: paginate(matched, pq),
			Total:  len(matched),
			Page:   pq.Page,
			Limit:  pq.Limit,
		},
		Stats: stats,
	}, nil
}

// ListAll returns every order for the admin dashboard.
func (s *Service) ListAll(ctx context.Context, q PageQuery) (*Page, error) {
	const op = "orders.ListAll"
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	pq := q.normalize()
	return &Page{
		Orders: paginate(all, pq),
		Total:  len(all),
		Page:   pq.Page,
		Limit:  pq.Limit,
	}, nil
}

func sellerView(o Order, email string) Order {
	view := o
	view.Stores = nil
	for _, st := range o.Stores {
		if strings.EqualFold(st.StoreEmail, email) {
			view.Stores = append(view.Stores, st)
		}
	}
	return view
}

func hasStoreEmail(o *Order, email string) bool {
	for _, st := range o.Stores {
		if strings.EqualFold(st.StoreEmail, email) {
			return true
		}
	}
	return false
}

func hasStoreStatus(o Order, status string) bool {
	for _, st := range o.Stores {
		if st.StoreOrderStatus == status {
			return true
		}
	}
	return false
}

func matchesSearch(o Order, term string) bool {
	if strings.EqualFold(o.OrderID, term) {
		return true
	}
	if strings.Contains(strings.ToLower(o.ShippingAddress.Name), term) ||
		strings.Contains(strings.ToLower(o.ShippingAddress.Phone), term) {
		return true
	}
	for _, st := range o.Stores {
		for _, it := range st.Items {
			if strings.Contains(strings.ToLower(it.ProductName), term) {
				return true
			}
		}
	}
	return false
}
