package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"stealthy-realtime/internal/auth"
)

const userIDContextKey = "userID"

// TokenVerifier resolves a bearer token to a user identity.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	userID, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	value, ok := userID.(string)
	return value, ok && value != ""
}

// RequireAuth accepts the token from the Authorization header, the session
// cookie or the token query parameter.
func RequireAuth(v TokenVerifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request, cookieName)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Please login to access this route"})
			c.Abort()
			return
		}

		userID, err := v.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Set(userIDContextKey, userID)
		c.Next()
	}
}
