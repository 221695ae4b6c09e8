package cart

import (
	"strings"
	"time"
)

// Item is one cart line. Color and Size are nil when the product has no
// such variant; empty strings never reach storage.
type Item struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	Color     *string `dynamodbav:"color,omitempty" json:"color"`
	Size      *string `dynamodbav:"size,omitempty" json:"size"`
}

// Key is the identity of a cart line. Absent color or size is "".
type Key struct {
	ProductID string
	Color     string
	Size      string
}

// Key returns the line's identity key.
func (i Item) Key() Key {
	return Key{ProductID: i.ProductID, Color: deref(i.Color), Size: deref(i.Size)}
}

// NewKey builds a normalised key. Nil, empty and blank variants are the same
// variant.
func NewKey(productID string, color, size *string) Key {
	return Key{
		ProductID: strings.TrimSpace(productID),
		Color:     deref(Normalize(color)),
		Size:      deref(Normalize(size)),
	}
}

// Item turns a key into a line of qty units.
func (k Key) Item(qty int) Item {
	return Item{
		ProductID: k.ProductID,
		Quantity:  qty,
		Color:     optional(k.Color),
		Size:      optional(k.Size),
	}
}

// Normalize maps "", blank and nil to nil.
func Normalize(v *string) *string {
	if v == nil {
		return nil
	}
	return optional(strings.TrimSpace(*v))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Cart is the per-customer cart document.
type Cart struct {
	Email     string    `dynamodbav:"email" json:"email"` // PK
	Items     []Item    `dynamodbav:"items" json:"items"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updatedAt"`
	Version   int64     `dynamodbav:"version" json:"-"`
}

// QuantityOf sums the quantity of every variant of productID.
func (c *Cart) QuantityOf(productID string) int {
	total := 0
	for _, it := range c.Items {
		if it.ProductID == productID {
			total += it.Quantity
		}
	}
	return total
}

// Find returns the index of the line matching key, or -1.
func (c *Cart) Find(key Key) int {
	for i, it := range c.Items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

// Merge adds qty to the matching line or appends a new one.
func (c *Cart) Merge(key Key, qty int) {
	if i := c.Find(key); i >= 0 {
		c.Items[i].Quantity += qty
		return
	}
	c.Items = append(c.Items, key.Item(qty))
}

// Remove drops every line whose key is in keys and reports whether
// anything changed.
func (c *Cart) Remove(keys ...Key) bool {
	drop := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	kept := c.Items[:0]
	for _, it := range c.Items {
		if _, ok := drop[it.Key()]; ok {
			continue
		}
		kept = append(kept, it)
	}
	changed := len(kept) != len(c.Items)
	c.Items = kept
	return changed
}

// Line is a requested checkout line.
type Line struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Color     *string `json:"color"`
	Size      *string `json:"size"`
}

// Skip reasons reported by CheckoutSnapshot.
const (
	SkipProductNotFound = "product_not_found"
	SkipProductInactive = "product_inactive"
	SkipOutOfStock      = "out_of_stock"
	SkipInvalidQuantity = "invalid_quantity"
)

// CheckoutItem is a checkout line resolved against live product and store data.
type CheckoutItem struct {
	ProductID         string  `json:"productId"`
	ProductName       string  `json:"productName"`
	ProductImage      string  `json:"productImage"`
	Color             *string `json:"color"`
	Size              *string `json:"size"`
	Quantity          int     `json:"quantity"`
	RequestedQuantity int     `json:"requestedQuantity"`
	QuantityClamped   bool    `json:"quantityClamped"`
	Stock             int     `json:"stock"`
	UnitPrice         float64 `json:"unitPrice"`
	Discount          float64 `json:"discount"`
	DiscountedPrice   float64 `json:"discountedPrice"`
	Subtotal          float64 `json:"subtotal"`
	StoreID           string  `json:"storeId"`
	StoreName         string  `json:"storeName"`
	StoreAddress      string  `json:"storeAddress,omitempty"`
	District          string  `json:"district,omitempty"`
	Region            string  `json:"region,omitempty"`
}

// Skipped is a requested line left out of the snapshot and why.
type Skipped struct {
	Reason string `json:"reason"`
	Line   Line   `json:"line"`
}

// Snapshot is the best-effort checkout view.
type Snapshot struct {
	Items   []CheckoutItem `json:"items"`
	Skipped []Skipped      `json:"skipped"`
}

// DetailedItem is a cart line joined with its product.
type DetailedItem struct {
	Item
	Product ProductSummary `json:"product"`
}

// ProductSummary is the product data shown next to a cart line.
type ProductSummary struct {
	ID        string   `json:"_id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Discount  float64  `json:"discount"`
	Images    []string `json:"images"`
	Stock     int      `json:"stock"`
	StoreName string   `json:"storeName"`
	StoreID   string   `json:"storeId"`
}
