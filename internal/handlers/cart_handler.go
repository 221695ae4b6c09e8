package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/go-marketplace-orders/internal/cart"
	"github.com/imrishuroy/go-marketplace-orders/internal/validation"
)

// CartService is the cart engine as seen by the HTTP layer.
type CartService interface {
	GetCart(ctx context.Context, email string) ([]cart.Item, error)
	Details(ctx context.Context, email string) ([]cart.DetailedItem, error)
	AddItem(ctx context.Context, email string, in cart.AddInput) ([]cart.Item, error)
	UpdateItem(ctx context.Context, email string, in cart.AddInput) ([]cart.Item, error)
	RemoveItem(ctx context.Context, email string, key cart.Key) ([]cart.Item, error)
	RemoveItems(ctx context.Context, email string, keys []cart.Key) ([]cart.Item, error)
	Clear(ctx context.Context, email string) error
	SyncCart(ctx context.Context, email string, local []cart.Line) ([]cart.Item, error)
	CheckoutSnapshot(ctx context.Context, lines []cart.Line) (*cart.Snapshot, error)
}

type cartHandler struct {
	svc CartService
	v   *validatorv10.Validate
}

func (h *cartHandler) get(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	items, err := h.svc.GetCart(c.Request.Context(), who.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"cart": items})
}

func (h *cartHandler) details(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	items, err := h.svc.Details(c.Request.Context(), who.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items})
}

func (h *cartHandler) add(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	var req validation.CartItemRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	items, err := h.svc.AddItem(c.Request.Context(), who.Email, addInput(req))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Item added to cart", "cart": items})
}

func (h *cartHandler) update(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	var req validation.CartItemRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	items, err := h.svc.UpdateItem(c.Request.Context(), who.Email, addInput(req))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Cart updated", "cart": items})
}

// remove takes the variant from the query string: ?color=red&size=M.
func (h *cartHandler) remove(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	key := cart.NewKey(c.Param("productId"), optionalQuery(c, "color"), optionalQuery(c, "size"))
	items, err := h.svc.RemoveItem(c.Request.Context(), who.Email, key)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Item removed from cart", "cart": items})
}

func (h *cartHandler) removeItems(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	var req validation.RemoveItemsRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	keys := make([]cart.Key, 0, len(req.Items))
	for _, it := range req.Items {
		keys = append(keys, cart.NewKey(it.ProductID, it.Color, it.Size))
	}
	items, err := h.svc.RemoveItems(c.Request.Context(), who.Email, keys)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Items removed from cart", "cart": items})
}

func (h *cartHandler) sync(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	var req validation.SyncCartRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	items, err := h.svc.SyncCart(c.Request.Context(), who.Email, lines(req.LocalCart))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Cart synced", "cart": items})
}

func (h *cartHandler) clear(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}
	if err := h.svc.Clear(c.Request.Context(), who.Email); err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Cart cleared", "cart": []cart.Item{}})
}

func (h *cartHandler) checkoutItems(c *gin.Context) {
	var req validation.CheckoutItemsRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	snap, err := h.svc.CheckoutSnapshot(c.Request.Context(), lines(req.Items))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": snap.Items, "skipped": snap.Skipped})
}

func addInput(req validation.CartItemRequest) cart.AddInput {
	return cart.AddInput{ProductID: req.ProductID, Quantity: req.Quantity, Color: req.Color, Size: req.Size}
}

func lines(in []validation.LineRequest) []cart.Line {
	out := make([]cart.Line, 0, len(in))
	for _, l := range in {
		out = append(out, cart.Line{ProductID: l.ProductID, Quantity: l.Quantity, Color: l.Color, Size: l.Size})
	}
	return out
}

func optionalQuery(c *gin.Context, name string) *string {
	v, present := c.GetQuery(name)
	if !present {
		return nil
	}
	return &v
}
