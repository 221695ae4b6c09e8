// Package cart is the per-customer cart: stock-aware line merging keyed by
// (product, color, size) and the lenient checkout snapshot shown before an
// order is placed.
package cart

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/imrishuroy/go-marketplace-orders/internal/catalog"
	"github.com/imrishuroy/go-marketplace-orders/internal/money"
	"github.com/imrishuroy/go-marketplace-orders/internal/sellers"
)

// maxWriteAttempts bounds the read-modify-write loop on version conflicts.
const maxWriteAttempts = 3

// errUnchanged short-circuits a mutation that has nothing to write.
var errUnchanged = errors.New("cart unchanged")

// Products is the read side of the stock ledger.
type Products interface {
	Get(ctx context.Context, productID string) (*catalog.Product, error)
	GetMany(ctx context.Context, productIDs []string) (map[string]catalog.Product, error)
}

// Service implements the cart operations.
type Service struct {
	store    Store
	products Products
	sellers  sellers.Directory
	nowFunc  func() time.Time
}

// NewService wires the cart service.
func NewService(store Store, products Products, directory sellers.Directory) *Service {
	return &Service{
		store:    store,
		products: products,
		sellers:  directory,
		nowFunc:  time.Now,
	}
}

// AddInput is a request to add units of a product variant.
type AddInput struct {
	ProductID string
	Quantity  int
	Color     *string
	Size      *string
}

// GetCart returns the customer's lines, creating an empty cart on first use.
func (s *Service) GetCart(ctx context.Context, email string) ([]Item, error) {
	const op = "cart.GetCart"
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		c, err := s.store.Get(ctx, email)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		if c != nil {
			return c.Items, nil
		}
		now := s.nowFunc()
		c = &Cart{Email: email, Items: []Item{}, CreatedAt: now, UpdatedAt: now}
		err = s.store.Put(ctx, c, 0)
		if err == nil {
			return c.Items, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, apperr.Internal(op, err)
		}
	}
	return nil, apperr.Conflict(op, "Cart was modified concurrently, please retry")
}

// AddItem adds units of a variant, capping the customer's total across every
// variant of the product at its stock.
func (s *Service) AddItem(ctx context.Context, email string, in AddInput) ([]Item, error) {
	const op = "cart.AddItem"
	key := NewKey(in.ProductID, in.Color, in.Size)
	if key.ProductID == "" {
		return nil, apperr.Validation(op, "Product ID is required")
	}
	if in.Quantity <= 0 {
		return nil, apperr.Validation(op, "Quantity must be at least 1")
	}

	product, err := s.product(ctx, op, key.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active() {
		return nil, apperr.E(apperr.KindUnavailable, op, "Product is not available")
	}

	c, err := s.mutate(ctx, op, email, true, func(c *Cart) error {
		existing := c.QuantityOf(key.ProductID)
		if existing+in.Quantity > product.Stock {
			available := product.Stock - existing
			if available < 0 {
				available = 0
			}
			return apperr.E(apperr.KindInsufficientStock, op, "Not enough stock available").WithDetail(map[string]any{
				"availableToAdd":   available,
				"existingQuantity": existing,
				"totalStock":       product.Stock,
			})
		}
		c.Merge(key, in.Quantity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.Items, nil
}

// UpdateItem sets the exact quantity of an existing line.
func (s *Service) UpdateItem(ctx context.Context, email string, in AddInput) ([]Item, error) {
	const op = "cart.UpdateItem"
	key := NewKey(in.ProductID, in.Color, in.Size)
	if key.ProductID == "" {
		return nil, apperr.Validation(op, "Product ID is required")
	}
	if in.Quantity < 1 {
		return nil, apperr.Validation(op, "Quantity must be at least 1")
	}

	product, err := s.product(ctx, op, key.ProductID)
	if err != nil {
		return nil, err
	}

	c, err := s.mutate(ctx, op, email, false, func(c *Cart) error {
		if c == nil {
			return apperr.NotFound(op, "Cart not found")
		}
		i := c.Find(key)
		if i < 0 {
			return apperr.NotFound(op, "Item not found in cart")
		}
		others := c.QuantityOf(key.ProductID) - c.Items[i].Quantity
		if others+in.Quantity > product.Stock {
			maxAllowed := product.Stock - others
			if maxAllowed < 0 {
				maxAllowed = 0
			}
			return apperr.E(apperr.KindInsufficientStock, op, "Not enough stock available").WithDetail(map[string]any{
				"maxAllowed": maxAllowed,
				"totalStock": product.Stock,
			})
		}
		if c.Items[i].Quantity == in.Quantity {
			return errUnchanged
		}
		c.Items[i].Quantity = in.Quantity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.Items, nil
}

// RemoveItem drops one line. Removing a line that is not there is a no-op.
func (s *Service) RemoveItem(ctx context.Context, email string, key Key) ([]Item, error) {
	return s.RemoveItems(ctx, email, []Key{key})
}

// RemoveItems drops every line matching keys.
func (s *Service) RemoveItems(ctx context.Context, email string, keys []Key) ([]Item, error) {
	const op = "cart.RemoveItems"
	c, err := s.mutate(ctx, op, email, false, func(c *Cart) error {
		if c == nil || !c.Remove(keys...) {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return []Item{}, nil
	}
	return c.Items, nil
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, email string) error {
	const op = "cart.Clear"
	_, err := s.mutate(ctx, op, email, false, func(c *Cart) error {
		if c == nil || len(c.Items) == 0 {
			return errUnchanged
		}
		c.Items = []Item{}
		return nil
	})
	return err
}

// SyncCart merges a guest cart into the stored one at login. Quantities add
// per identity key and each product's total is held to its stock; lines for
// unknown or inactive products are dropped.
func (s *Service) SyncCart(ctx context.Context, email string, local []Line) ([]Item, error) {
	const op = "cart.SyncCart"
	ids := make([]string, 0, len(local))
	for _, l := range local {
		ids = append(ids, strings.TrimSpace(l.ProductID))
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	c, err := s.mutate(ctx, op, email, true, func(c *Cart) error {
		changed := false
		for _, l := range local {
			key := NewKey(l.ProductID, l.Color, l.Size)
			p, ok := products[key.ProductID]
			if !ok || !p.Active() || l.Quantity <= 0 {
				continue
			}
			room := p.Stock - c.QuantityOf(key.ProductID)
			qty := l.Quantity
			if qty > room {
				qty = room
			}
			if qty <= 0 {
				continue
			}
			c.Merge(key, qty)
			changed = true
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.Items, nil
}

// Details joins each line with its product. Lines whose product is gone are
// left out.
func (s *Service) Details(ctx context.Context, email string) ([]DetailedItem, error) {
	const op = "cart.Details"
	c, err := s.store.Get(ctx, email)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	out := []DetailedItem{}
	if c == nil || len(c.Items) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	for _, it := range c.Items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		out = append(out, DetailedItem{
			Item: it,
			Product: ProductSummary{
				ID:        p.ProductID,
				Name:      p.Name,
				Price:     p.Price,
				Discount:  p.Discount,
				Images:    p.Images,
				Stock:     p.Stock,
				StoreName: p.StoreName,
				StoreID:   p.StoreID,
			},
		})
	}
	return out, nil
}

// CheckoutSnapshot resolves requested lines against live data for display.
// It never fails on a line: missing, inactive and sold out products are
// reported in Skipped and oversized quantities are clamped to stock.
func (s *Service) CheckoutSnapshot(ctx context.Context, lines []Line) (*Snapshot, error) {
	const op = "cart.CheckoutSnapshot"
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, strings.TrimSpace(l.ProductID))
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	snap := &Snapshot{Items: []CheckoutItem{}, Skipped: []Skipped{}}
	stores := map[string]*sellers.Seller{}
	for _, l := range lines {
		key := NewKey(l.ProductID, l.Color, l.Size)
		p, ok := products[key.ProductID]
		switch {
		case l.Quantity <= 0:
			snap.Skipped = append(snap.Skipped, Skipped{Reason: SkipInvalidQuantity, Line: l})
			continue
		case !ok:
			snap.Skipped = append(snap.Skipped, Skipped{Reason: SkipProductNotFound, Line: l})
			continue
		case !p.Active():
			snap.Skipped = append(snap.Skipped, Skipped{Reason: SkipProductInactive, Line: l})
			continue
		case p.Stock <= 0:
			snap.Skipped = append(snap.Skipped, Skipped{Reason: SkipOutOfStock, Line: l})
			continue
		}

		qty := l.Quantity
		if qty > p.Stock {
			qty = p.Stock
		}
		discounted := money.ApplyDiscount(p.Price, p.Discount)
		item := CheckoutItem{
			ProductID:         p.ProductID,
			ProductName:       p.Name,
			ProductImage:      p.Image(),
			Color:             optional(key.Color),
			Size:              optional(key.Size),
			Quantity:          qty,
			RequestedQuantity: l.Quantity,
			QuantityClamped:   qty != l.Quantity,
			Stock:             p.Stock,
			UnitPrice:         p.Price,
			Discount:          p.Discount,
			DiscountedPrice:   discounted,
			Subtotal:          money.Mul(discounted, qty),
			StoreID:           p.StoreID,
			StoreName:         p.StoreName,
		}

		seller, seen := stores[p.StoreID]
		if !seen {
			seller, err = s.sellers.FindByID(ctx, p.StoreID)
			if err != nil {
				log.Printf("[cart] seller lookup failed store=%s err=%v", p.StoreID, err)
				seller = nil
			}
			stores[p.StoreID] = seller
		}
		if seller != nil {
			if seller.StoreName != "" {
				item.StoreName = seller.StoreName
			}
			item.StoreAddress = seller.StoreAddress
			item.District = seller.District
			item.Region = seller.Region
		}
		snap.Items = append(snap.Items, item)
	}
	return snap, nil
}

func (s *Service) product(ctx context.Context, op, id string) (*catalog.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if p == nil {
		return nil, apperr.NotFound(op, "Product not found")
	}
	return p, nil
}

// mutate runs a read-modify-write on the customer's cart, retrying when a
// concurrent write wins. fn receives nil when there is no cart unless create
// is set, in which case it gets a fresh empty cart. Returning errUnchanged
// skips the write.
func (s *Service) mutate(ctx context.Context, op, email string, create bool, fn func(c *Cart) error) (*Cart, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		c, err := s.store.Get(ctx, email)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		now := s.nowFunc()
		if c == nil && create {
			c = &Cart{Email: email, Items: []Item{}, CreatedAt: now}
		}

		if err := fn(c); err != nil {
			if errors.Is(err, errUnchanged) {
				return c, nil
			}
			return nil, err
		}

		expected := c.Version
		c.UpdatedAt = now
		err = s.store.Put(ctx, c, expected)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, apperr.Internal(op, err)
		}
		log.Printf("[cart] version conflict email=%s op=%s attempt=%d", email, op, attempt+1)
	}
	return nil, apperr.Conflict(op, "Cart was modified concurrently, please retry")
}
