package middleware

import (
	"net/http"
	"strings"

	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (jwt.MapClaims, error)
}

// Validates JWT token and requires authentication. Rejections are delayed
// and carry the same body regardless of the reason.
func RequireAuth(tokens TokenValidator, delayer security.Delayer) gin.HandlerFunc {
	return func(c *gin.Context) {
		reject := func() {
			delayer.Wait(c.Request.Context())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": security.MsgUnauthorized,
			})
		}

		// Extract token from Authorization header
		parts := strings.Split(c.GetHeader("Authorization"), " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			reject()
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			reject()
			return
		}

		userID, _ := claims["user_id"].(string)
		if userID == "" {
			reject()
			return
		}
		email, _ := claims["email"].(string)

		// Store user info in context
		c.Set("user_id", userID)
		c.Set("email", email)

		c.Next()
	}
}
