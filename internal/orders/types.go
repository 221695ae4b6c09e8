package orders

import "time"

// Order statuses
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusPrepared  = "prepared"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// Payment statuses and methods
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"

	MethodCashOnDelivery = "cash_on_delivery"
	MethodCard           = "card"
)

// Line statuses
const (
	ItemActive    = "active"
	ItemCancelled = "cancelled"
)

// Caller roles.
const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleAdmin    = "admin"
)

// Address is a snapshot of a customer address taken at checkout.
type Address struct {
	Name     string `dynamodbav:"name" json:"name"`
	Phone    string `dynamodbav:"phone" json:"phone"`
	Email    string `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Address  string `dynamodbav:"address" json:"address"`
	Building string `dynamodbav:"building,omitempty" json:"building,omitempty"`
	Thana    string `dynamodbav:"thana,omitempty" json:"thana,omitempty"`
	District string `dynamodbav:"district" json:"district"`
	Region   string `dynamodbav:"region,omitempty" json:"region,omitempty"`
	Label    string `dynamodbav:"label,omitempty" json:"label,omitempty"`
}

// OrderItem is one priced line inside a store order.
type OrderItem struct {
	ProductID          string     `dynamodbav:"product_id" json:"productId"`
	ProductName        string     `dynamodbav:"product_name" json:"productName"`
	ProductImage       string     `dynamodbav:"product_image,omitempty" json:"productImage"`
	Color              *string    `dynamodbav:"color,omitempty" json:"color"`
	Size               *string    `dynamodbav:"size,omitempty" json:"size"`
	Quantity           int        `dynamodbav:"quantity" json:"quantity"`
	UnitPrice          float64    `dynamodbav:"unit_price" json:"unitPrice"`
	Discount           float64    `dynamodbav:"discount" json:"discount"`
	DiscountedPrice    float64    `dynamodbav:"discounted_price" json:"discountedPrice"`
	Subtotal           float64    `dynamodbav:"subtotal" json:"subtotal"`
	Status             string     `dynamodbav:"status" json:"status"`
	CancelledAt        *time.Time `dynamodbav:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
	CancellationReason string     `dynamodbav:"cancellation_reason,omitempty" json:"cancellationReason,omitempty"`
	CancelledBy        string     `dynamodbav:"cancelled_by,omitempty" json:"cancelledBy,omitempty"`
}

// Cancelled reports whether the line has been cancelled.
func (i OrderItem) Cancelled() bool { return i.Status == ItemCancelled }

// StoreOrder is the part of an order fulfilled by one seller.
type StoreOrder struct {
	StoreID                  string      `dynamodbav:"store_id" json:"storeId"`
	StoreName                string      `dynamodbav:"store_name" json:"storeName"`
	StoreEmail               string      `dynamodbav:"store_email" json:"storeEmail"`
	StoreOrderStatus         string      `dynamodbav:"store_order_status" json:"storeOrderStatus"`
	Items                    []OrderItem `dynamodbav:"items" json:"items"`
	DeliveryCharge           float64     `dynamodbav:"delivery_charge" json:"deliveryCharge"`
	StoreTotal               float64     `dynamodbav:"store_total" json:"storeTotal"`
	PlatformCommission       float64     `dynamodbav:"platform_commission" json:"platformCommission"` // percent
	PlatformCommissionAmount float64     `dynamodbav:"platform_commission_amount" json:"platformCommissionAmount"`
	SellerAmount             float64     `dynamodbav:"seller_amount" json:"sellerAmount"`
	RiderAmount              float64     `dynamodbav:"rider_amount" json:"riderAmount"`
	StatusUpdatedAt          *time.Time  `dynamodbav:"status_updated_at,omitempty" json:"updatedAt,omitempty"`
	CancelledAt              *time.Time  `dynamodbav:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
	CancellationReason       string      `dynamodbav:"cancellation_reason,omitempty" json:"cancellationReason,omitempty"`
	CancelledBy              string      `dynamodbav:"cancelled_by,omitempty" json:"cancelledBy,omitempty"`
}

// Cancelled reports whether the whole store order is cancelled.
func (s StoreOrder) Cancelled() bool { return s.StoreOrderStatus == StatusCancelled }

// CancelledLine records one line taken out of an order.
type CancelledLine struct {
	StoreID      string  `dynamodbav:"store_id" json:"storeId"`
	StoreName    string  `dynamodbav:"store_name" json:"storeName"`
	ItemIndex    int     `dynamodbav:"item_index" json:"itemIndex"`
	ProductID    string  `dynamodbav:"product_id" json:"productId"`
	ProductName  string  `dynamodbav:"product_name" json:"productName"`
	Color        *string `dynamodbav:"color,omitempty" json:"color"`
	Size         *string `dynamodbav:"size,omitempty" json:"size"`
	Quantity     int     `dynamodbav:"quantity" json:"quantity"`
	RefundAmount float64 `dynamodbav:"refund_amount" json:"refundAmount"`
}

// CancellationEvent is one entry of an order's cancellation history.
type CancellationEvent struct {
	ID              string          `dynamodbav:"id" json:"id"`
	CancelledAt     time.Time       `dynamodbav:"cancelled_at" json:"cancelledAt"`
	CancelledBy     string          `dynamodbav:"cancelled_by" json:"cancelledBy"`
	CancelledByRole string          `dynamodbav:"cancelled_by_role" json:"cancelledByRole"`
	Reason          string          `dynamodbav:"reason" json:"reason"`
	Items           []CancelledLine `dynamodbav:"items" json:"items"`
	ItemsRefund     float64         `dynamodbav:"items_refund" json:"itemsRefund"`
	DeliveryRefund  float64         `dynamodbav:"delivery_refund" json:"deliveryRefund"`
	CashFeeRefund   float64         `dynamodbav:"cash_fee_refund" json:"cashFeeRefund"`
	RefundAmount    float64         `dynamodbav:"refund_amount" json:"refundAmount"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID             string              `dynamodbav:"order_id" json:"_id"` // PK
	CustomerEmail       string              `dynamodbav:"customer_email" json:"customerEmail"`
	OrderStatus         string              `dynamodbav:"order_status" json:"orderStatus"`
	PaymentStatus       string              `dynamodbav:"payment_status" json:"paymentStatus"`
	ShippingAddress     Address             `dynamodbav:"shipping_address" json:"shippingAddress"`
	BillingAddress      Address             `dynamodbav:"billing_address" json:"billingAddress"`
	Stores              []StoreOrder        `dynamodbav:"stores" json:"stores"`
	StoreEmails         []string            `dynamodbav:"store_emails,stringset,omitempty" json:"-"` // seller listing filter
	ItemsTotal          float64             `dynamodbav:"items_total" json:"itemsTotal"`
	TotalDeliveryCharge float64             `dynamodbav:"total_delivery_charge" json:"totalDeliveryCharge"`
	TotalAmount         float64             `dynamodbav:"total_amount" json:"totalAmount"`
	CashPaymentFee      float64             `dynamodbav:"cash_payment_fee,omitempty" json:"cashPaymentFee,omitempty"`
	PaymentMethod       string              `dynamodbav:"payment_method,omitempty" json:"paymentMethod,omitempty"`
	TransactionID       string              `dynamodbav:"transaction_id,omitempty" json:"transactionId,omitempty"`
	CancellationHistory []CancellationEvent `dynamodbav:"cancellation_history,omitempty" json:"cancellationHistory,omitempty"`
	StockReservedAt     *time.Time          `dynamodbav:"stock_reserved_at,omitempty" json:"-"`
	ConfirmedAt         *time.Time          `dynamodbav:"confirmed_at,omitempty" json:"confirmedAt,omitempty"`
	PaidAt              *time.Time          `dynamodbav:"paid_at,omitempty" json:"paidAt,omitempty"`
	CancelledAt         *time.Time          `dynamodbav:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
	CreatedAt           time.Time           `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt           time.Time           `dynamodbav:"updated_at" json:"updatedAt"`
	Version             int64               `dynamodbav:"version" json:"-"`
}

// Store returns the store order for storeID, or nil.
func (o *Order) Store(storeID string) *StoreOrder {
	for i := range o.Stores {
		if o.Stores[i].StoreID == storeID {
			return &o.Stores[i]
		}
	}
	return nil
}

// FullyCancelled reports whether every store order is cancelled.
func (o *Order) FullyCancelled() bool {
	if len(o.Stores) == 0 {
		return false
	}
	for _, s := range o.Stores {
		if !s.Cancelled() {
			return false
		}
	}
	return true
}

// SkippedLine is a requested cancellation line that was not applied.
type SkippedLine struct {
	StoreID   string `json:"storeId"`
	ProductID string `json:"productId"`
	ItemIndex *int   `json:"itemIndex,omitempty"`
	Reason    string `json:"reason"`
}

// Cancellation skip reasons.
const (
	SkipAlreadyCancelled = "already_cancelled"
	SkipIndexOutOfRange  = "index_out_of_range"
	SkipProductMismatch  = "product_mismatch"
	SkipItemNotFound     = "item_not_found"
	SkipStoreNotPending  = "store_not_pending"
	SkipStoreNotFound    = "store_not_found"
)

// RefundSummary reports what a cancellation did.
type RefundSummary struct {
	OrderID         string          `json:"orderId"`
	CancelledItems  []CancelledLine `json:"cancelledItems"`
	Skipped         []SkippedLine   `json:"skipped"`
	ItemsRefund     float64         `json:"itemsRefund"`
	DeliveryRefund  float64         `json:"deliveryRefund"`
	CashFeeRefund   float64         `json:"cashFeeRefund"`
	TotalRefund     float64         `json:"totalRefund"`
	OrderStatus     string          `json:"orderStatus"`
	TotalAmount     float64         `json:"totalAmount"`
	FullyCancelled  bool            `json:"fullyCancelled"`
	RefundRequested bool            `json:"refundRequested"`
}
