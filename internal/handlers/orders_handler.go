package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/imrishuroy/go-marketplace-orders/internal/idempotency"
	"github.com/imrishuroy/go-marketplace-orders/internal/orders"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
	"github.com/imrishuroy/go-marketplace-orders/internal/validation"
)

// OrderService is the order core as seen by the HTTP layer.
type OrderService interface {
	CreateOrder(ctx context.Context, who orders.Identity, in orders.CreateInput) (*orders.Order, error)
	Get(ctx context.Context, orderID string, who orders.Identity) (*orders.Order, error)
	ListMine(ctx context.Context, email string) ([]orders.Order, error)
	ListForSeller(ctx context.Context, email string, q orders.SellerQuery) (*orders.SellerPage, error)
	ListAll(ctx context.Context, q orders.PageQuery) (*orders.Page, error)
	ConfirmOrder(ctx context.Context, orderID, email string) (*orders.Order, error)
	CancelOrderItems(ctx context.Context, orderID string, who orders.Identity, requests []orders.CancelRequest, reason string) (*orders.RefundSummary, error)
	UpdateStoreOrderStatus(ctx context.Context, orderID, storeID, newStatus, sellerEmail string) (*orders.Order, error)
	RequestPayment(ctx context.Context, orderID, email string) (*payments.Intent, error)
}

// IdempotencyStore remembers the outcome of POST /orders per client key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
}

type ordersHandler struct {
	svc  OrderService
	keys IdempotencyStore
	v    *validatorv10.Validate
}

// create places an order. With an Idempotency-Key header the key is claimed
// in the order transaction, and repeats replay the stored response.
func (h *ordersHandler) create(c *gin.Context) {
	ctx := c.Request.Context()
	who, found := caller(c)
	if !found {
		return
	}

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	scoped := ""
	if key := c.GetHeader("Idempotency-Key"); key != "" && h.keys != nil {
		scoped = idempotency.ScopedKey(who.Email, key)
		if h.replay(c, scoped) {
			return
		}
	}

	order, err := h.svc.CreateOrder(ctx, who, createInput(req, scoped))
	if err != nil {
		var e *apperr.Error
		if scoped != "" && errors.As(err, &e) && e.Kind == apperr.KindConflict && e.Detail["reason"] == "duplicate_request" {
			if h.replay(c, scoped) {
				return
			}
		}
		writeError(c, err)
		return
	}

	body := gin.H{"success": true, "message": "Order created successfully", "order": order}
	if scoped != "" {
		if raw, err := json.Marshal(body); err == nil {
			if err := h.keys.MarkDone(ctx, scoped, string(raw), http.StatusCreated); err != nil {
				log.Printf("[http] mark idempotency done failed key=%s order=%s err=%v", scoped, order.OrderID, err)
			}
		}
	}
	c.Header("Location", fmt.Sprintf("/orders/%s", order.OrderID))
	c.JSON(http.StatusCreated, body)
}

// replay answers from a stored idempotency record. It reports false when
// there is no record to answer from.
func (h *ordersHandler) replay(c *gin.Context, key string) bool {
	rec, err := h.keys.Get(c.Request.Context(), key)
	if err != nil {
		writeError(c, apperr.Internal("orders.replay", err))
		return true
	}
	if rec == nil {
		return false
	}
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" {
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return true
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "orderId": rec.Reference})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "Request already in progress", "orderId": rec.Reference})
	case idempotency.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Previous attempt failed, please retry with a new key", "error": apperr.KindInternal})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Unknown idempotency status", "error": apperr.KindInternal})
	}
	return true
}

func (h *ordersHandler) get(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	o, err := h.svc.Get(c.Request.Context(), c.Param("id"), who)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"order": o})
}

func (h *ordersHandler) listMine(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	list, err := h.svc.ListMine(c.Request.Context(), who.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"orders": list})
}

func (h *ordersHandler) listForSeller(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	page, err := h.svc.ListForSeller(c.Request.Context(), who.Email, orders.SellerQuery{
		PageQuery: pageQuery(c),
		Status:    c.Query("status"),
		Search:    c.Query("search"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"orders": page.Orders,
		"total":  page.Total,
		"page":   page.Page,
		"limit":  page.Limit,
		"stats":  page.Stats,
	})
}

func (h *ordersHandler) listAll(c *gin.Context) {
	page, err := h.svc.ListAll(c.Request.Context(), pageQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"orders": page.Orders, "total": page.Total, "page": page.Page, "limit": page.Limit})
}

func (h *ordersHandler) confirm(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	o, err := h.svc.ConfirmOrder(c.Request.Context(), c.Param("id"), who.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Order confirmed", "order": o})
}

func (h *ordersHandler) cancel(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	var req validation.CancelOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	requests := make([]orders.CancelRequest, 0, len(req.ItemsToCancel))
	for _, st := range req.ItemsToCancel {
		cr := orders.CancelRequest{StoreID: st.StoreID}
		for _, it := range st.Items {
			cr.Items = append(cr.Items, orders.CancelLine{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Color:     it.Color,
				Size:      it.Size,
				ItemIndex: it.ItemIndex,
			})
		}
		requests = append(requests, cr)
	}

	summary, err := h.svc.CancelOrderItems(c.Request.Context(), c.Param("id"), who, requests, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	msg := "Items cancelled"
	if len(summary.CancelledItems) == 0 {
		msg = "Nothing to cancel"
	}
	ok(c, http.StatusOK, gin.H{"message": msg, "refund": summary})
}

func (h *ordersHandler) updateStoreStatus(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	var req validation.UpdateStoreStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.UpdateStoreOrderStatus(c.Request.Context(), c.Param("id"), req.StoreID, req.Status, who.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Store order status updated", "order": o})
}

func (h *ordersHandler) createPaymentIntent(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	var req validation.PaymentIntentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	intent, err := h.svc.RequestPayment(c.Request.Context(), req.OrderID, who.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"clientSecret": intent.ClientSecret, "intent": intent})
}

func createInput(req validation.CreateOrderRequest, key string) orders.CreateInput {
	in := orders.CreateInput{
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: address(req.ShippingAddress),
		IdempotencyKey:  key,
	}
	if req.BillingAddress != nil {
		b := address(*req.BillingAddress)
		in.BillingAddress = &b
	}
	for _, st := range req.Stores {
		sr := orders.StoreRequest{StoreID: st.StoreID}
		for _, it := range st.Items {
			sr.Items = append(sr.Items, orders.ItemRequest{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Color:     it.Color,
				Size:      it.Size,
			})
		}
		in.Stores = append(in.Stores, sr)
	}
	if req.ItemsTotal != nil && req.TotalDeliveryCharge != nil && req.TotalAmount != nil {
		in.ClientTotals = &orders.ClientTotals{
			ItemsTotal:          *req.ItemsTotal,
			TotalDeliveryCharge: *req.TotalDeliveryCharge,
			TotalAmount:         *req.TotalAmount,
		}
	}
	return in
}

func address(a validation.AddressRequest) orders.Address {
	return orders.Address{
		Name: a.Name, Phone: a.Phone, Email: a.Email, Address: a.Address, Building: a.Building,
		Thana: a.Thana, District: a.District, Region: a.Region, Label: a.Label,
	}
}

// pageQuery reads ?page (zero based) and ?limit, ignoring junk values.
func pageQuery(c *gin.Context) orders.PageQuery {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return orders.PageQuery{Page: page, Limit: limit}
}
