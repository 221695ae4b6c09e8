package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/imrishuroy/go-marketplace-orders/internal/auth"
	"github.com/imrishuroy/go-marketplace-orders/internal/orders"
)

// writeError renders err in the shared failure envelope. Internal errors are
// logged with their cause and shown to the client as a generic message.
func writeError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Internal("http", err)
	}
	status := apperr.HTTPStatus(e.Kind)
	if e.Kind == apperr.KindInternal {
		log.Printf("[http] %s %s failed op=%s err=%v", c.Request.Method, c.FullPath(), e.Op, err)
		c.AbortWithStatusJSON(status, gin.H{
			"success": false,
			"message": "Something went wrong, please try again",
			"error":   e.Kind,
		})
		return
	}
	body := gin.H{
		"success": false,
		"message": e.Message,
		"error":   e.Kind,
	}
	if len(e.Detail) > 0 {
		body["detail"] = e.Detail
	}
	c.AbortWithStatusJSON(status, body)
}

func ok(c *gin.Context, status int, payload gin.H) {
	payload["success"] = true
	c.JSON(status, payload)
}

// caller converts the identity set by auth.Middleware. Routes are always
// mounted behind the middleware, so a missing identity is a wiring bug.
func caller(c *gin.Context) (orders.Identity, bool) {
	id, found := auth.FromContext(c)
	if !found {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized Access"})
		return orders.Identity{}, false
	}
	return orders.Identity{Email: id.Email, Role: id.Role}, true
}
