// Package auth turns a verified session token into the caller identity the
// services authorise against. Token issuance lives elsewhere.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles known to the marketplace.
const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleRider    = "rider"
	RoleAdmin    = "admin"
)

const (
	contextKey = "identity"
	cookieName = "token"
)

// Identity is the authenticated caller.
type Identity struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Claims is the session token payload.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

var errNoToken = errors.New("missing token")

// Verifier validates HS256 session tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Parse validates a raw token and returns the identity it carries.
func (v *Verifier) Parse(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, errNoToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid || claims.Email == "" || claims.Role == "" {
		return Identity{}, errors.New("invalid token claims")
	}
	return Identity{Email: strings.ToLower(claims.Email), Role: claims.Role}, nil
}

// Middleware rejects requests without a valid token and stores the identity
// on the gin context. The token is read from the session cookie first, then
// from a bearer Authorization header.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(cookieName)
		if raw == "" {
			raw = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized Access"})
			return
		}
		id, err := v.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid or expired token"})
			return
		}
		c.Set(contextKey, id)
		c.Next()
	}
}

// RequireRole allows only the listed roles through.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized Access"})
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "Forbidden: " + strings.Join(roles, " or ") + " only",
		})
	}
}

// FromContext returns the identity stored by Middleware.
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
