package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/rs/zerolog/log"
)

// Handler handles authentication requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token   string          `json:"token"`
	Account AccountResponse `json:"account"`
}

// AccountResponse represents account data in responses
type AccountResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	SystemRole string `json:"system_role"`
}

func accountToResponse(a *models.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Email: a.Email, SystemRole: string(a.SystemRole)}
}

// issue starts a session and returns a bearer token for account
func (h *Handler) issue(c *gin.Context, status int, account *models.Account) {
	if err := SetSession(c, account); err != nil {
		log.Warn().Err(err).Str("account_id", account.ID).Msg("failed to save session")
	}

	token, err := GenerateToken(account.ID, account.Email, string(account.SystemRole))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(status, AuthResponse{Token: token, Account: accountToResponse(account)})
}

// SignUp handles account registration
// @Summary Sign up
// @Description Create an account and its profile, and receive a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignUpInput true "Sign-up details"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 409 {object} map[string]string "Username or email already taken"
// @Router /auth/signup [post]
func (h *Handler) SignUp(c *gin.Context) {
	var req SignUpInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	h.issue(c, http.StatusCreated, account)
}

// Login handles sign-in
// @Summary Login
// @Description Authenticate with email and password to receive a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		apperrors.Respond(c, err)
		return
	}

	h.issue(c, http.StatusOK, account)
}

// Me returns the current authenticated account
// @Summary Get current account
// @Description Get the authenticated account
// @Tags auth
// @Produce json
// @Success 200 {object} AccountResponse
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	accountID, exists := GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	account, err := h.svc.Account(c.Request.Context(), accountID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, accountToResponse(account))
}

// Logout ends the browser session. Bearer tokens are discarded client-side.
// @Summary Logout
// @Description End the session cookie (bearer tokens are discarded client-side)
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logged out successfully"
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	if err := ClearSession(c); err != nil {
		log.Warn().Err(err).Msg("failed to clear session")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// RegisterRoutes registers auth routes on the given router group.
// The group must carry the session middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/signup", h.SignUp)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", SessionOrToken(), h.Me)
}
