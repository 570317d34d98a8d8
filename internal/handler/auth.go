package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/middleware"
	"bikeshare/internal/service"
)

// AuthHandler issues bearer tokens for demo accounts.
type AuthHandler struct {
	authService *service.AuthService
	tokens      *middleware.TokenManager
	ttl         time.Duration
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, tokens *middleware.TokenManager, ttl time.Duration) *AuthHandler {
	return &AuthHandler{authService: authService, tokens: tokens, ttl: ttl}
}

// TokenResponse is the HTTP response for a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Role        string `json:"role"`
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	principal, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.Issue(principal)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.ttl.Seconds()),
		Role:        string(principal.Role),
	})
}
