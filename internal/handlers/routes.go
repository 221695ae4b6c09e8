// Package handlers exposes the cart and order services over REST.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-marketplace-orders/internal/auth"
	"github.com/imrishuroy/go-marketplace-orders/internal/validation"
)

// Dependencies groups what the routes need.
type Dependencies struct {
	Cart     CartService
	Orders   OrderService
	Keys     IdempotencyStore
	Verifier *auth.Verifier
}

// RegisterRoutes mounts the health check and every authenticated route.
func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	v := validation.New()
	ch := &cartHandler{svc: deps.Cart, v: v}
	oh := &ordersHandler{svc: deps.Orders, keys: deps.Keys, v: v}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := r.Group("/", deps.Verifier.Middleware())
	customer := auth.RequireRole(auth.RoleCustomer)
	seller := auth.RequireRole(auth.RoleSeller)

	c := authed.Group("/cart", customer)
	c.GET("", ch.get)
	c.GET("/details", ch.details)
	c.POST("/add", ch.add)
	c.PUT("/update", ch.update)
	c.DELETE("/remove/:productId", ch.remove)
	c.POST("/remove-items", ch.removeItems)
	c.POST("/sync", ch.sync)
	c.DELETE("/clear", ch.clear)
	c.POST("/checkout-items", ch.checkoutItems)

	o := authed.Group("/orders")
	o.POST("", customer, oh.create)
	o.GET("/my", customer, oh.listMine)
	o.GET("/seller/orders", seller, oh.listForSeller)
	o.GET("/all", auth.RequireRole(auth.RoleAdmin), oh.listAll)
	o.GET("/:id", oh.get)
	o.PATCH("/:id/confirm", customer, oh.confirm)
	o.POST("/:id/cancel", auth.RequireRole(auth.RoleCustomer, auth.RoleSeller), oh.cancel)
	o.PATCH("/:id/store-status", seller, oh.updateStoreStatus)

	authed.POST("/payments/create-payment-intent", customer, oh.createPaymentIntent)
}
