package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/aman-churiwal/projectguard/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type MembershipService interface {
	CreateProject(ctx context.Context, ownerID string) (*models.ProjectMember, error)
	ListMembers(ctx context.Context, actorID, projectID string) ([]models.ProjectMember, error)
	Invite(ctx context.Context, actorID, projectID, email, role string, meta service.RequestMeta) (*models.ProjectMember, error)
	UpdateRole(ctx context.Context, actorID, projectID, targetUserID, role string, meta service.RequestMeta) (*models.ProjectMember, error)
	Remove(ctx context.Context, actorID, projectID, targetUserID string, meta service.RequestMeta) error
}

// MembershipHandler serves the enumeration-sensitive membership routes.
// Every failure goes through fail, which logs the cause and answers with
// the fixed message for the operation after a random delay.
type MembershipHandler struct {
	service MembershipService
	delayer Delayer
	logger  *slog.Logger
}

func NewMembershipHandler(svc MembershipService, delayer Delayer, logger *slog.Logger) *MembershipHandler {
	return &MembershipHandler{service: svc, delayer: delayer, logger: logger}
}

func (h *MembershipHandler) CreateProject(c *gin.Context) {
	member, err := h.service.CreateProject(c.Request.Context(), currentUserID(c))
	if err != nil {
		logFailure(c, h.logger, "project creation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"project_id": member.ProjectID,
		"owner":      member,
	})
}

func (h *MembershipHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	members, err := h.service.ListMembers(ctx, currentUserID(c), c.Param("projectId"))
	if err != nil {
		logFailure(c, h.logger, "member listing failed", err, "project_id", c.Param("projectId"))
		if errors.Is(err, service.ErrNotPermitted) {
			h.delayer.Wait(ctx)
			c.JSON(http.StatusForbidden, gin.H{"message": security.MsgUnauthorized})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list members"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"members": members,
		"count":   len(members),
	})
}

func (h *MembershipHandler) Invite(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Role  string `json:"role" binding:"required,oneof=admin editor viewer"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		if field, ok := emailSyntaxField(err); ok {
			h.delayer.Wait(c.Request.Context())
			c.JSON(http.StatusBadRequest, gin.H{"message": security.ValidationMessage(field)})
			return
		}
		h.fail(c, security.OpInvite, err)
		return
	}

	member, err := h.service.Invite(c.Request.Context(), currentUserID(c), c.Param("projectId"), req.Email, req.Role, requestMeta(c))
	if err != nil {
		h.fail(c, security.OpInvite, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

func (h *MembershipHandler) UpdateRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required,oneof=admin editor viewer"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, security.OpUpdate, err)
		return
	}

	member, err := h.service.UpdateRole(c.Request.Context(), currentUserID(c), c.Param("projectId"), c.Param("userId"), req.Role, requestMeta(c))
	if err != nil {
		h.fail(c, security.OpUpdate, err)
		return
	}

	c.JSON(http.StatusOK, member)
}

func (h *MembershipHandler) Remove(c *gin.Context) {
	err := h.service.Remove(c.Request.Context(), currentUserID(c), c.Param("projectId"), c.Param("userId"), requestMeta(c))
	if err != nil {
		h.fail(c, security.OpRemove, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MembershipHandler) fail(c *gin.Context, op security.Operation, err error) {
	logFailure(c, h.logger, "membership operation failed", err,
		"operation", op,
		"project_id", c.Param("projectId"),
	)

	h.delayer.Wait(c.Request.Context())

	if errors.Is(err, service.ErrNotPermitted) {
		c.JSON(http.StatusForbidden, gin.H{"message": security.MsgUnauthorized})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"message": security.Sanitize(err, op)})
}

// Returns the field name when binding failed only because the email is malformed
func emailSyntaxField(err error) (string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "", false
	}
	for _, fe := range verrs {
		if fe.Field() != "Email" || fe.Tag() != "email" {
			return "", false
		}
	}
	return verrs[0].Field(), true
}
