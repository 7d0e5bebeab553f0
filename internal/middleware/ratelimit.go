package middleware

import (
	"net/http"
	"strconv"

	"github.com/aman-churiwal/projectguard/internal/ratelimit"
	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/gin-gonic/gin"
)

// RateLimit meters the authenticated caller against the policy for endpoint.
// The project is taken from the :projectId route parameter when present.
// Requests without a user id pass through untouched; RequireAuth runs first.
func RateLimit(limiter *ratelimit.Limiter, endpoint string, delayer security.Delayer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		decision := limiter.Check(ctx, userID, endpoint, c.Param("projectId"))

		if !decision.Metered {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfter))
			delayer.Wait(ctx)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message":    security.MsgRateLimited,
				"retryAfter": decision.RetryAfter,
			})
			return
		}

		c.Next()
	}
}
