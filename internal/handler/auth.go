package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/gin-gonic/gin"
)

type Authenticator interface {
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type AuthHandler struct {
	auth    Authenticator
	delayer Delayer
	logger  *slog.Logger
}

func NewAuthHandler(auth Authenticator, delayer Delayer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, delayer: delayer, logger: logger}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8,max=72"`
		Name     string `json:"name" binding:"max=255"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email and a password of 8 to 72 characters are required"})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		logFailure(c, h.logger, "registration failed", err, "email", security.HashForLogging(req.Email))
		h.delayer.Wait(c.Request.Context())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to complete registration"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

var errLoginRejected = errors.New("login rejected")

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, errLoginRejected, "")
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.reject(c, err, req.Email)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// The response is the same for unknown accounts and wrong passwords
func (h *AuthHandler) reject(c *gin.Context, err error, email string) {
	logFailure(c, h.logger, "login failed", err, "email", security.HashForLogging(email))
	h.delayer.Wait(c.Request.Context())
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
}
