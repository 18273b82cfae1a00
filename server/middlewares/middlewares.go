package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The identity provider lives in front of this service and, after validating
// the caller's session, forwards the user id in the "sub" header. This core
// only consumes that opaque id; it never sees credentials or tokens.
//
// Websocket clients cannot always set headers on the upgrade request, so the
// gateway also accepts the id as a "sub" query parameter, mirroring how the
// upstream proxy passes tokens on subscription URLs.

const (
	identityHeader = "sub"
	contextUserKey = "current_user_id"
)

// Identity resolves the caller's user id into the request context. An absent
// id means an anonymous caller; the request proceeds either way.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := c.Request.Header.Get(identityHeader)
		if sub == "" {
			sub = c.Query(identityHeader)
		}
		c.Set(contextUserKey, sub)
		c.Next()
	}
}

// RequireIdentity aborts anonymous requests with 401. Must run after
// Identity.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user id, or "" for anonymous
// callers.
func CurrentUser(c *gin.Context) string {
	if v, ok := c.Get(contextUserKey); ok {
		if sub, ok := v.(string); ok {
			return sub
		}
	}
	return ""
}
