package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/otgil/rethread/internal/auth"
	"github.com/otgil/rethread/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
)

func bearer(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func setIdentity(c *gin.Context, id auth.Identity) {
	c.Set(auth.ContextIdentity, id)
	c.Set(ContextUserID, id.UserID)
	c.Set(ContextUserRole, string(id.Role))
}

// JWT returns a middleware that resolves the bearer credential and sets the caller identity in context.
func JWT(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		token, ok := bearer(c)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		id, err := resolver.Resolve(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		setIdentity(c, *id)
		c.Next()
	}
}

// OptionalJWT lets anonymous requests through. When an Authorization header is
// present it must resolve, exactly as with JWT.
func OptionalJWT(resolver auth.Resolver) gin.HandlerFunc {
	strict := JWT(resolver)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		strict(c)
	}
}

// OptionalIdentity returns the caller identity if the request was authenticated.
func OptionalIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(auth.ContextIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// CurrentIdentity returns the identity set by JWT. It panics when called on an unauthenticated route.
func CurrentIdentity(c *gin.Context) auth.Identity {
	return c.MustGet(auth.ContextIdentity).(auth.Identity)
}
