package orders

import (
	"context"
	"log"
	"strings"

	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
)

// storeTransitions lists the single legal successor of each store status.
// Prepared and cancelled are terminal here; cancellation has its own path.
var storeTransitions = map[string]string{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusPrepared,
}

// CanTransition reports whether a store order may move from one status to
// the other.
func CanTransition(from, to string) bool {
	next, ok := storeTransitions[from]
	return ok && next == to
}

// UpdateStoreOrderStatus advances one store's part of an order on behalf of
// its seller and re-derives the parent status.
func (s *Service) UpdateStoreOrderStatus(ctx context.Context, orderID, storeID, newStatus, sellerEmail string) (*Order, error) {
	const op = "orders.UpdateStoreOrderStatus"
	o, err := s.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	st := o.Store(storeID)
	if st == nil || !strings.EqualFold(st.StoreEmail, sellerEmail) {
		return nil, apperr.Forbidden(op, "You are not authorized to update this store order")
	}
	from := st.StoreOrderStatus
	if !CanTransition(from, newStatus) {
		return nil, apperr.E(apperr.KindInvalidTransition, op, "Cannot change status from "+from+" to "+newStatus).WithDetail(map[string]any{
			"from": from, "to": newStatus, "allowed": storeTransitions[from],
		})
	}

	now := s.now()
	st.StoreOrderStatus = newStatus
	st.StatusUpdatedAt = &now
	prev := o.OrderStatus
	o.OrderStatus = aggregateStatus(o)

	if err := s.save(ctx, op, o, nil); err != nil {
		return nil, err
	}
	log.Printf("[orders] store status order=%s store=%s %s->%s parent %s->%s", o.OrderID, storeID, from, newStatus, prev, o.OrderStatus)
	s.publish(ctx, EventStoreStatusChanged, o, map[string]interface{}{
		"storeId": storeID, "storeOrderStatus": newStatus, "storeEmail": st.StoreEmail,
	})
	return o, nil
}
