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
)

type CredentialVault interface {
	Create(ctx context.Context, userID string, in service.CredentialInput) (*models.Credential, error)
	List(ctx context.Context, userID string) ([]models.Credential, error)
	Update(ctx context.Context, userID, id string, upd service.CredentialUpdate) (*models.Credential, error)
	Delete(ctx context.Context, userID, id string) error
	Reveal(ctx context.Context, userID, id, password string) (string, error)
}

type CredentialHandler struct {
	vault   CredentialVault
	delayer Delayer
	logger  *slog.Logger
}

func NewCredentialHandler(vault CredentialVault, delayer Delayer, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{vault: vault, delayer: delayer, logger: logger}
}

func (h *CredentialHandler) Create(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required,max=255"`
		Value    string `json:"value" binding:"required"`
		Category string `json:"category" binding:"max=100"`
		Website  string `json:"website" binding:"omitempty,max=2048"`
		Username string `json:"username" binding:"max=255"`
		Notes    string `json:"notes"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and value are required"})
		return
	}

	credential, err := h.vault.Create(c.Request.Context(), currentUserID(c), service.CredentialInput{
		Name:     req.Name,
		Value:    req.Value,
		Category: req.Category,
		Website:  req.Website,
		Username: req.Username,
		Notes:    req.Notes,
	})
	if err != nil {
		h.respondError(c, "credential create failed", err)
		return
	}

	c.JSON(http.StatusCreated, credential)
}

func (h *CredentialHandler) List(c *gin.Context) {
	credentials, err := h.vault.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, "credential list failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credentials": credentials,
		"count":       len(credentials),
	})
}

func (h *CredentialHandler) Update(c *gin.Context) {
	var req struct {
		Name     *string `json:"name"`
		Value    *string `json:"value"`
		Category *string `json:"category"`
		Website  *string `json:"website"`
		Username *string `json:"username"`
		Notes    *string `json:"notes"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	credential, err := h.vault.Update(c.Request.Context(), currentUserID(c), c.Param("id"), service.CredentialUpdate{
		Name:     req.Name,
		Value:    req.Value,
		Category: req.Category,
		Website:  req.Website,
		Username: req.Username,
		Notes:    req.Notes,
	})
	if err != nil {
		h.respondError(c, "credential update failed", err)
		return
	}

	c.JSON(http.StatusOK, credential)
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	if err := h.vault.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, "credential delete failed", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *CredentialHandler) Reveal(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	value, err := h.vault.Reveal(c.Request.Context(), currentUserID(c), c.Param("id"), req.Password)
	if err != nil {
		h.respondError(c, "credential reveal failed", err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"value": value})
}

func (h *CredentialHandler) respondError(c *gin.Context, msg string, err error) {
	logFailure(c, h.logger, msg, err, "credential_id", c.Param("id"))

	switch {
	case errors.Is(err, service.ErrReauthenticationFailed):
		h.delayer.Wait(c.Request.Context())
		c.JSON(http.StatusUnauthorized, gin.H{"message": security.MsgUnauthorized})
	case errors.Is(err, service.ErrCredentialNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Credential not found"})
	case errors.Is(err, service.ErrCredentialNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "A credential with this name already exists"})
	case errors.Is(err, service.ErrInvalidCredentialInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and value must not be empty"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Credential operation failed"})
	}
}
