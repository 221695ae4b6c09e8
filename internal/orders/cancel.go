package orders

import (
	"context"
	"log"
	"strings"

	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/imrishuroy/go-marketplace-orders/internal/cart"
	"github.com/imrishuroy/go-marketplace-orders/internal/money"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
)

// CancelLine identifies a line to cancel, by index or by identity key.
// Quantity is informational; the whole ordered quantity is restocked.
type CancelLine struct {
	ProductID string
	Quantity  int
	Color     *string
	Size      *string
	ItemIndex *int
}

// CancelRequest lists the lines to cancel in one store.
type CancelRequest struct {
	StoreID string
	Items   []CancelLine
}

// CancelOrderItems cancels lines of an order, restocks them and recomputes
// every money field. Lines that cannot be cancelled are reported in the
// summary rather than failing the call, so repeating a request is safe.
func (s *Service) CancelOrderItems(ctx context.Context, orderID string, who Identity, requests []CancelRequest, reason string) (*RefundSummary, error) {
	const op = "orders.CancelOrderItems"
	reason = strings.TrimSpace(reason)
	if len(requests) == 0 {
		return nil, apperr.Validation(op, "Please provide items to cancel")
	}
	if reason == "" {
		return nil, apperr.Validation(op, "Please provide a cancellation reason")
	}

	o, err := s.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeCancel(op, o, who, requests); err != nil {
		return nil, err
	}

	now := s.now()
	summary := &RefundSummary{
		OrderID:        o.OrderID,
		CancelledItems: []CancelledLine{},
		Skipped:        []SkippedLine{},
	}
	restock := map[string]int{}
	var restockOrder []string
	touched := map[string]bool{}

	for _, req := range requests {
		st := o.Store(req.StoreID)
		storeSkip := ""
		switch {
		case st == nil:
			storeSkip = SkipStoreNotFound
		case st.Cancelled():
			storeSkip = SkipAlreadyCancelled
		case who.Role == RoleSeller && st.StoreOrderStatus != StatusPending:
			storeSkip = SkipStoreNotPending
		}
		if storeSkip != "" {
			for _, line := range req.Items {
				summary.Skipped = append(summary.Skipped, skipped(req.StoreID, line, storeSkip))
			}
			continue
		}

		for _, line := range req.Items {
			idx, skip := resolveLine(st, line)
			if skip != "" {
				summary.Skipped = append(summary.Skipped, skipped(req.StoreID, line, skip))
				continue
			}
			it := &st.Items[idx]
			it.Status = ItemCancelled
			it.CancelledAt = &now
			it.CancellationReason = reason
			it.CancelledBy = who.Role

			if _, ok := restock[it.ProductID]; !ok {
				restockOrder = append(restockOrder, it.ProductID)
			}
			restock[it.ProductID] += it.Quantity
			touched[st.StoreID] = true
			summary.CancelledItems = append(summary.CancelledItems, CancelledLine{
				StoreID:      st.StoreID,
				StoreName:    st.StoreName,
				ItemIndex:    idx,
				ProductID:    it.ProductID,
				ProductName:  it.ProductName,
				Color:        it.Color,
				Size:         it.Size,
				Quantity:     it.Quantity,
				RefundAmount: it.Subtotal,
			})
		}
	}

	if len(summary.CancelledItems) == 0 {
		summary.OrderStatus = o.OrderStatus
		summary.TotalAmount = o.TotalAmount
		summary.FullyCancelled = o.FullyCancelled()
		return summary, nil
	}

	var itemRefunds, deliveryRefunds []float64
	for _, line := range summary.CancelledItems {
		itemRefunds = append(itemRefunds, line.RefundAmount)
	}
	for i := range o.Stores {
		st := &o.Stores[i]
		if !touched[st.StoreID] {
			continue
		}
		if allCancelled(st.Items) {
			deliveryRefunds = append(deliveryRefunds, st.DeliveryCharge)
			st.StoreOrderStatus = StatusCancelled
			st.CancelledAt = &now
			st.CancellationReason = reason
			st.CancelledBy = who.Role
		}
		recomputeStore(st)
	}

	summary.ItemsRefund = money.Sum(itemRefunds...)
	summary.DeliveryRefund = money.Sum(deliveryRefunds...)
	summary.FullyCancelled = o.FullyCancelled()
	if summary.FullyCancelled {
		summary.CashFeeRefund = money.Round(o.CashPaymentFee)
		o.OrderStatus = StatusCancelled
		o.CancelledAt = &now
	} else {
		o.OrderStatus = aggregateStatus(o)
	}
	summary.TotalRefund = money.Sum(summary.ItemsRefund, summary.DeliveryRefund, summary.CashFeeRefund)
	recomputeTotals(o)

	event := CancellationEvent{
		ID:              s.newID(),
		CancelledAt:     now,
		CancelledBy:     who.Email,
		CancelledByRole: who.Role,
		Reason:          reason,
		Items:           summary.CancelledItems,
		ItemsRefund:     summary.ItemsRefund,
		DeliveryRefund:  summary.DeliveryRefund,
		CashFeeRefund:   summary.CashFeeRefund,
		RefundAmount:    summary.TotalRefund,
	}
	o.CancellationHistory = append(o.CancellationHistory, event)

	var stock []StockChange
	if o.StockReservedAt != nil {
		stock, err = s.restockChanges(ctx, op, restockOrder, restock)
		if err != nil {
			return nil, err
		}
	}
	if err := s.save(ctx, op, o, stock); err != nil {
		return nil, err
	}
	summary.OrderStatus = o.OrderStatus
	summary.TotalAmount = o.TotalAmount

	log.Printf("[orders] cancelled order=%s lines=%d refund=%s by=%s role=%s full=%t",
		o.OrderID, len(summary.CancelledItems), money.String(summary.TotalRefund), who.Email, who.Role, summary.FullyCancelled)

	if o.PaymentStatus == PaymentPaid && summary.TotalRefund > 0 && s.payments != nil {
		err := s.payments.Refund(ctx, payments.RefundRequest{
			OrderID:   o.OrderID,
			Amount:    summary.TotalRefund,
			Reference: event.ID,
			Reason:    reason,
		})
		if err != nil {
			log.Printf("[orders] refund request failed order=%s ref=%s err=%v", o.OrderID, event.ID, err)
		} else {
			summary.RefundRequested = true
		}
	}
	s.publish(ctx, EventOrderCancelled, o, map[string]interface{}{
		"cancellationId": event.ID,
		"refundAmount":   summary.TotalRefund,
		"fullyCancelled": summary.FullyCancelled,
	})
	s.count(ctx, MetricLinesCancelled, float64(len(summary.CancelledItems)))
	s.amount(ctx, MetricRefundAmount, summary.TotalRefund)
	return summary, nil
}

func authorizeCancel(op string, o *Order, who Identity, requests []CancelRequest) error {
	switch who.Role {
	case RoleCustomer:
		if o.CustomerEmail != who.Email {
			return apperr.Forbidden(op, "You can only cancel your own orders")
		}
		if o.OrderStatus == StatusCancelled {
			return nil
		}
		if o.OrderStatus != StatusPending || o.PaymentStatus != PaymentUnpaid {
			return apperr.Conflict(op, "Order cannot be cancelled. It has been confirmed or paid.")
		}
	case RoleSeller:
		for _, req := range requests {
			st := o.Store(req.StoreID)
			if st == nil || !strings.EqualFold(st.StoreEmail, who.Email) {
				return apperr.Forbidden(op, "You can only cancel items from your own store")
			}
		}
	default:
		return apperr.Forbidden(op, "Only customers and sellers can cancel orders")
	}
	return nil
}

// resolveLine finds the line a request points at, or the reason it is skipped.
func resolveLine(st *StoreOrder, line CancelLine) (int, string) {
	if line.ItemIndex != nil {
		idx := *line.ItemIndex
		if idx < 0 || idx >= len(st.Items) {
			return -1, SkipIndexOutOfRange
		}
		if st.Items[idx].ProductID != line.ProductID {
			return -1, SkipProductMismatch
		}
		if st.Items[idx].Cancelled() {
			return -1, SkipAlreadyCancelled
		}
		return idx, ""
	}

	key := cart.NewKey(line.ProductID, line.Color, line.Size)
	matched := false
	for i, it := range st.Items {
		if cart.NewKey(it.ProductID, it.Color, it.Size) != key {
			continue
		}
		if !it.Cancelled() {
			return i, ""
		}
		matched = true
	}
	if matched {
		return -1, SkipAlreadyCancelled
	}
	return -1, SkipItemNotFound
}

func skipped(storeID string, line CancelLine, reason string) SkippedLine {
	return SkippedLine{StoreID: storeID, ProductID: line.ProductID, ItemIndex: line.ItemIndex, Reason: reason}
}

func allCancelled(items []OrderItem) bool {
	for _, it := range items {
		if !it.Cancelled() {
			return false
		}
	}
	return true
}

// restockChanges turns cancelled quantities into stock increments. Products
// that no longer exist are left out so the transaction does not fail on them.
func (s *Service) restockChanges(ctx context.Context, op string, ids []string, qty map[string]int) ([]StockChange, error) {
	live, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	changes := make([]StockChange, 0, len(ids))
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			log.Printf("[orders] skipping restock of deleted product=%s qty=%d", id, qty[id])
			continue
		}
		changes = append(changes, StockChange{ProductID: id, Delta: qty[id]})
	}
	return changes, nil
}
