package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/repository"
	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/aman-churiwal/projectguard/internal/service"
	"github.com/gin-gonic/gin"
)

type AuditReader interface {
	GetLogs(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLog, error)
}

// MemberAuthorizer checks that the caller may manage (and so audit) a project
type MemberAuthorizer interface {
	Authorize(ctx context.Context, actorID, projectID string) (*models.ProjectMember, error)
}

type AuditHandler struct {
	audit   AuditReader
	members MemberAuthorizer
	delayer Delayer
	logger  *slog.Logger
}

func NewAuditHandler(audit AuditReader, members MemberAuthorizer, delayer Delayer, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, members: members, delayer: delayer, logger: logger}
}

func (h *AuditHandler) List(c *gin.Context) {
	var query struct {
		Action      string    `form:"action" binding:"omitempty,oneof=invite role_change remove"`
		PerformedBy string    `form:"performed_by"`
		TargetEmail string    `form:"target_email"`
		From        time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
		To          time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
		Limit       int       `form:"limit" binding:"omitempty,min=1,max=500"`
		Offset      int       `form:"offset" binding:"omitempty,min=0"`
	}

	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	ctx := c.Request.Context()
	projectID := c.Param("projectId")

	if _, err := h.members.Authorize(ctx, currentUserID(c), projectID); err != nil {
		logFailure(c, h.logger, "audit log access denied", err, "project_id", projectID)
		h.delayer.Wait(ctx)
		if errors.Is(err, service.ErrNotPermitted) {
			c.JSON(http.StatusForbidden, gin.H{"message": security.MsgUnauthorized})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit logs"})
		return
	}

	logs, err := h.audit.GetLogs(ctx, repository.AuditFilter{
		ProjectID:   projectID,
		Action:      models.AuditAction(query.Action),
		PerformedBy: query.PerformedBy,
		TargetEmail: query.TargetEmail,
		From:        query.From,
		To:          query.To,
		Limit:       query.Limit,
		Offset:      query.Offset,
	})
	if err != nil {
		logFailure(c, h.logger, "audit log query failed", err, "project_id", projectID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}
