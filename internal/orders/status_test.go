package orders

import (
	"context"
	"testing"

	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusConfirmed, StatusPrepared))

	assert.False(t, CanTransition(StatusPending, StatusPrepared))
	assert.False(t, CanTransition(StatusConfirmed, StatusPending))
	assert.False(t, CanTransition(StatusPrepared, StatusShipped))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
	assert.False(t, CanTransition(StatusPending, StatusPending))
	assert.False(t, CanTransition(StatusPending, "teleported"))
}

func TestUpdateStoreOrderStatus_ParentFollowsStores(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())

	steps := []struct {
		store, email, status, parent string
	}{
		{"s1", fashionEmail, StatusConfirmed, StatusPending},
		{"s2", gadgetEmail, StatusConfirmed, StatusConfirmed},
		{"s1", fashionEmail, StatusPrepared, StatusConfirmed},
		{"s2", gadgetEmail, StatusPrepared, StatusPrepared},
	}
	for _, step := range steps {
		got, err := h.svc.UpdateStoreOrderStatus(ctx, o.OrderID, step.store, step.status, step.email)
		require.NoError(t, err, "%s -> %s", step.store, step.status)
		assert.Equal(t, step.status, got.Store(step.store).StoreOrderStatus)
		assert.NotNil(t, got.Store(step.store).StatusUpdatedAt)
		assert.Equal(t, step.parent, got.OrderStatus, "%s -> %s", step.store, step.status)
	}

	stored := h.stored(t, o.OrderID)
	assert.Equal(t, StatusPrepared, stored.OrderStatus)
	assert.Equal(t, 1930.0, stored.TotalAmount, "status changes do not touch money")
	assert.Equal(t, 8, h.catalog.stock("tshirt"))
	assert.Equal(t, []string{
		EventOrderPlaced,
		EventStoreStatusChanged, EventStoreStatusChanged, EventStoreStatusChanged, EventStoreStatusChanged,
	}, h.events.types())
}

func TestUpdateStoreOrderStatus_RejectsWithoutChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())
	_, err := h.svc.UpdateStoreOrderStatus(ctx, o.OrderID, "s1", StatusConfirmed, fashionEmail)
	require.NoError(t, err)
	before := h.stored(t, o.OrderID)

	cases := []struct {
		name, store, status, email string
		kind                       apperr.Kind
	}{
		{"skip a step", "s2", StatusPrepared, gadgetEmail, apperr.KindInvalidTransition},
		{"go backwards", "s1", StatusPending, fashionEmail, apperr.KindInvalidTransition},
		{"repeat", "s1", StatusConfirmed, fashionEmail, apperr.KindInvalidTransition},
		{"delivery status", "s1", StatusShipped, fashionEmail, apperr.KindInvalidTransition},
		{"unknown status", "s1", "lost", fashionEmail, apperr.KindInvalidTransition},
		{"someone else's store", "s2", StatusConfirmed, fashionEmail, apperr.KindForbidden},
		{"unknown store", "s9", StatusConfirmed, fashionEmail, apperr.KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.UpdateStoreOrderStatus(ctx, o.OrderID, tc.store, tc.status, tc.email)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
			assert.Equal(t, before, h.stored(t, o.OrderID))
		})
	}

	_, err = h.svc.UpdateStoreOrderStatus(ctx, "missing", "s1", StatusConfirmed, fashionEmail)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdateStoreOrderStatus_IgnoresCancelledStores(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.placeOrder(t, twoStoreInput())

	_, err := h.svc.CancelOrderItems(ctx, o.OrderID, customer, []CancelRequest{
		{StoreID: "s1", Items: []CancelLine{{ProductID: "tshirt", Color: strPtr("red"), Size: strPtr("M")}}},
	}, "wrong size")
	require.NoError(t, err)

	got, err := h.svc.UpdateStoreOrderStatus(ctx, o.OrderID, "s2", StatusConfirmed, gadgetEmail)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.OrderStatus, "the cancelled store does not hold the parent back")

	_, err = h.svc.UpdateStoreOrderStatus(ctx, o.OrderID, "s1", StatusConfirmed, fashionEmail)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestAggregateStatus(t *testing.T) {
	order := func(parent string, stores ...string) *Order {
		o := &Order{OrderStatus: parent}
		for _, s := range stores {
			o.Stores = append(o.Stores, StoreOrder{StoreOrderStatus: s})
		}
		return o
	}

	assert.Equal(t, StatusPending, aggregateStatus(order(StatusPending, StatusPending, StatusConfirmed)))
	assert.Equal(t, StatusConfirmed, aggregateStatus(order(StatusPending, StatusConfirmed, StatusConfirmed)))
	assert.Equal(t, StatusConfirmed, aggregateStatus(order(StatusConfirmed, StatusConfirmed, StatusPrepared)))
	assert.Equal(t, StatusPrepared, aggregateStatus(order(StatusConfirmed, StatusPrepared, StatusCancelled)))
	assert.Equal(t, StatusCancelled, aggregateStatus(order(StatusPending, StatusCancelled, StatusCancelled)))
	assert.Equal(t, StatusShipped, aggregateStatus(order(StatusShipped, StatusPrepared)))
	assert.Equal(t, StatusDelivered, aggregateStatus(order(StatusDelivered, StatusCancelled)))
}
