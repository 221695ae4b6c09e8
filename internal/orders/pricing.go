package orders

import (
	"strings"

	"github.com/imrishuroy/go-marketplace-orders/internal/catalog"
	"github.com/imrishuroy/go-marketplace-orders/internal/money"
	"github.com/imrishuroy/go-marketplace-orders/internal/sellers"
)

// Pricing holds the marketplace's fee schedule.
type Pricing struct {
	CommissionPercent     float64
	CashPaymentFee        float64
	DeliveryChargeInside  float64
	DeliveryChargeOutside float64
}

// DeliveryCharge is the inside rate when the parcel stays in the seller's
// district and the outside rate otherwise.
func (p Pricing) DeliveryCharge(seller *sellers.Seller, shipping Address) float64 {
	if seller != nil && seller.District != "" &&
		strings.EqualFold(strings.TrimSpace(seller.District), strings.TrimSpace(shipping.District)) {
		return money.Round(p.DeliveryChargeInside)
	}
	return money.Round(p.DeliveryChargeOutside)
}

// priceLine snapshots the product onto a new order line.
func priceLine(p catalog.Product, qty int, color, size *string) OrderItem {
	discounted := money.ApplyDiscount(p.Price, p.Discount)
	return OrderItem{
		ProductID:       p.ProductID,
		ProductName:     p.Name,
		ProductImage:    p.Image(),
		Color:           color,
		Size:            size,
		Quantity:        qty,
		UnitPrice:       money.Round(p.Price),
		Discount:        p.Discount,
		DiscountedPrice: discounted,
		Subtotal:        money.Mul(discounted, qty),
		Status:          ItemActive,
	}
}

// recomputeStore derives a store's money fields from its active lines.
// Commission is charged on the item total only and the rider is paid the
// delivery charge, so the seller keeps storeTotal minus commission.
func recomputeStore(s *StoreOrder) {
	if s.Cancelled() {
		s.StoreTotal = 0
		s.PlatformCommissionAmount = 0
		s.RiderAmount = 0
		s.SellerAmount = 0
		return
	}
	subtotals := make([]float64, 0, len(s.Items))
	for _, it := range s.Items {
		if !it.Cancelled() {
			subtotals = append(subtotals, it.Subtotal)
		}
	}
	s.StoreTotal = money.Sum(subtotals...)
	s.PlatformCommissionAmount = money.Percent(s.StoreTotal, s.PlatformCommission)
	s.RiderAmount = money.Round(s.DeliveryCharge)
	s.SellerAmount = money.Round(money.Sum(s.StoreTotal, s.DeliveryCharge) -
		money.Sum(s.PlatformCommissionAmount, s.RiderAmount))
}

// recomputeTotals derives the order aggregates from its active stores. The
// cash fee is charged unless every store is cancelled.
func recomputeTotals(o *Order) {
	var items, delivery []float64
	for _, s := range o.Stores {
		if s.Cancelled() {
			continue
		}
		items = append(items, s.StoreTotal)
		delivery = append(delivery, s.DeliveryCharge)
	}
	o.ItemsTotal = money.Sum(items...)
	o.TotalDeliveryCharge = money.Sum(delivery...)
	fee := 0.0
	if !o.FullyCancelled() {
		fee = o.CashPaymentFee
	}
	o.TotalAmount = money.Sum(o.ItemsTotal, o.TotalDeliveryCharge, fee)
}

// aggregateStatus derives the parent status from the active stores: all
// prepared gives prepared, all confirmed gives confirmed, no active store
// gives cancelled and any mix keeps the current label. Statuses past
// prepared are owned by delivery and never recomputed here.
func aggregateStatus(o *Order) string {
	switch o.OrderStatus {
	case StatusShipped, StatusDelivered, StatusCancelled:
		return o.OrderStatus
	}
	counts := map[string]int{}
	active := 0
	for _, s := range o.Stores {
		if s.Cancelled() {
			continue
		}
		active++
		counts[s.StoreOrderStatus]++
	}
	switch {
	case active == 0:
		return StatusCancelled
	case counts[StatusPrepared] == active:
		return StatusPrepared
	case counts[StatusConfirmed] == active:
		return StatusConfirmed
	}
	return o.OrderStatus
}

// storeEmails lists the distinct seller emails on the order.
func storeEmails(stores []StoreOrder) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range stores {
		if s.StoreEmail == "" {
			continue
		}
		if _, ok := seen[s.StoreEmail]; ok {
			continue
		}
		seen[s.StoreEmail] = struct{}{}
		out = append(out, s.StoreEmail)
	}
	return out
}
