package validation

// CartItemRequest is the payload for POST /cart/add and PUT /cart/update.
type CartItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	Color     *string `json:"color"`
	Size      *string `json:"size"`
}

// ItemKey identifies a cart line.
type ItemKey struct {
	ProductID string  `json:"productId" validate:"required"`
	Color     *string `json:"color"`
	Size      *string `json:"size"`
}

// RemoveItemsRequest is the payload for POST /cart/remove-items.
type RemoveItemsRequest struct {
	Items []ItemKey `json:"items" validate:"required,min=1,dive"`
}

// LineRequest is a guest cart or checkout line. Quantities are checked by
// the cart service, which reports bad lines instead of rejecting the call.
type LineRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  int     `json:"quantity"`
	Color     *string `json:"color"`
	Size      *string `json:"size"`
}

// SyncCartRequest is the payload for POST /cart/sync.
type SyncCartRequest struct {
	LocalCart []LineRequest `json:"localCart" validate:"dive"`
}

// CheckoutItemsRequest is the payload for POST /cart/checkout-items.
type CheckoutItemsRequest struct {
	Items []LineRequest `json:"items" validate:"required,min=1,dive"`
}

// AddressRequest is a shipping or billing address snapshot.
type AddressRequest struct {
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address" validate:"required"`
	Building string `json:"building"`
	Thana    string `json:"thana"`
	District string `json:"district" validate:"required"`
	Region   string `json:"region"`
	Label    string `json:"label"`
}

// OrderItemRequest is one line of a checkout payload.
type OrderItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	UnitPrice float64 `json:"unitPrice" validate:"gt=0"`
	Color     *string `json:"color"`
	Size      *string `json:"size"`
}

// StoreOrderRequest groups checkout lines by store.
type StoreOrderRequest struct {
	StoreID string             `json:"storeId" validate:"required"`
	Items   []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateOrderRequest is the payload for POST /orders. The totals are the
// storefront's own figures; the server reprices every line.
type CreateOrderRequest struct {
	CustomerEmail       string              `json:"customerEmail" validate:"required,email"`
	ShippingAddress     AddressRequest      `json:"shippingAddress"`
	BillingAddress      *AddressRequest     `json:"billingAddress" validate:"omitempty"`
	Stores              []StoreOrderRequest `json:"stores" validate:"required,min=1,dive"`
	ItemsTotal          *float64            `json:"itemsTotal" validate:"omitempty,gte=0"`
	TotalDeliveryCharge *float64            `json:"totalDeliveryCharge" validate:"omitempty,gte=0"`
	TotalAmount         *float64            `json:"totalAmount" validate:"omitempty,gte=0"`
}

// CancelLineRequest identifies a line to cancel by index or identity key.
type CancelLineRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  int     `json:"quantity" validate:"omitempty,min=1"`
	Color     *string `json:"color"`
	Size      *string `json:"size"`
	ItemIndex *int    `json:"itemIndex" validate:"omitempty,min=0"`
}

// CancelStoreRequest lists the lines to cancel in one store.
type CancelStoreRequest struct {
	StoreID string              `json:"storeId" validate:"required"`
	Items   []CancelLineRequest `json:"items" validate:"required,min=1,dive"`
}

// CancelOrderRequest is the payload for POST /orders/:id/cancel.
type CancelOrderRequest struct {
	ItemsToCancel []CancelStoreRequest `json:"itemsToCancel" validate:"required,min=1,dive"`
	Reason        string               `json:"reason" validate:"required,max=500"`
}

// UpdateStoreStatusRequest is the payload for PATCH /orders/:id/store-status.
type UpdateStoreStatusRequest struct {
	StoreID string `json:"storeId" validate:"required"`
	Status  string `json:"status" validate:"required"`
}

// PaymentIntentRequest is the payload for POST /payments/create-payment-intent.
type PaymentIntentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}
