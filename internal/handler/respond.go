package handler

import (
	"context"
	"log/slog"

	"github.com/aman-churiwal/projectguard/internal/service"
	"github.com/gin-gonic/gin"
)

// Returns the authenticated caller set by RequireAuth
func currentUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// Delayer pauses before error responses
type Delayer interface {
	Wait(ctx context.Context)
}

func logFailure(c *gin.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		"request_id", c.GetString("request_id"),
		"user_id", currentUserID(c),
		"error", err,
	)
	logger.WarnContext(c.Request.Context(), msg, attrs...)
}
