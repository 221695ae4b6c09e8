package catalog

// Product statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Product is the catalog record the order core reads and whose stock it
// adjusts. Everything else about products is owned by the catalog service.
type Product struct {
	ProductID string   `dynamodbav:"product_id" json:"_id"`
	Name      string   `dynamodbav:"name" json:"name"`
	Price     float64  `dynamodbav:"price" json:"price"`
	Discount  float64  `dynamodbav:"discount" json:"discount"` // percent
	Stock     int      `dynamodbav:"stock" json:"stock"`
	Status    string   `dynamodbav:"status" json:"status"`
	StoreID   string   `dynamodbav:"store_id" json:"storeId"`
	StoreName string   `dynamodbav:"store_name" json:"storeName"`
	Images    []string `dynamodbav:"images,omitempty" json:"images,omitempty"`
	Colors    []string `dynamodbav:"color,omitempty" json:"color,omitempty"`
}

// Active reports whether the product can be sold.
func (p Product) Active() bool { return p.Status == StatusActive }

// Image returns the first image, used as the order line thumbnail.
func (p Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
