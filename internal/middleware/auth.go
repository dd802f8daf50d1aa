package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/auth"
	"messaging-service/internal/errs"
)

const (
	UserIDKey   = "userID"
	UsernameKey = "username"
)

// AuthMiddleware verifies the caller's credential (cookie or bearer header)
// and stores the user id in the gin context.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _, ok := auth.ExtractCredential(c.Request)
		if !ok {
			abortUnauthenticated(c, "missing authorization")
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abortUnauthenticated(c, "invalid token")
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(UsernameKey, identity.Username)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"result":  "error",
		"code":    errs.KindUnauthenticated,
		"message": message,
	})
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) string {
	if val, ok := c.Get(UserIDKey); ok {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}
