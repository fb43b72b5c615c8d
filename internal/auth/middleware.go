package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the gin context key the handlers read the requesting
// user from.
const userIDKey = "user_id"

// OptionalAuth decodes a bearer token when one is present and stores
// the user id in the request context. Requests without a valid token
// proceed anonymously; session management proper is handled by an
// external service.
func OptionalAuth(verifier *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			if claims, err := verifier.Parse(strings.TrimPrefix(header, "Bearer ")); err == nil {
				c.Set(userIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated user id for the request, or 0 for
// anonymous requests.
func UserID(c *gin.Context) int {
	return c.GetInt(userIDKey)
}
