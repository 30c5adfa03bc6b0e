package profiles

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/models"
)

// ProvisionTokenHeader carries the shared secret for server-side provisioning
const ProvisionTokenHeader = "X-Provision-Token"

// Handler handles profile requests
type Handler struct {
	svc   *Service
	views *Assembler
}

// NewHandler creates a new profiles handler
func NewHandler(svc *Service, views *Assembler) *Handler {
	return &Handler{svc: svc, views: views}
}

// ProfileResponse represents a stored profile in API responses
type ProfileResponse struct {
	ID                string  `json:"id"`
	Username          string  `json:"username"`
	DisplayName       *string `json:"display_name"`
	AvatarURL         *string `json:"avatar_url"`
	Bio               *string `json:"bio"`
	BackgroundColor   *string `json:"background_color"`
	TwitterUsername   *string `json:"twitter_username"`
	InstagramUsername *string `json:"instagram_username"`
	TiktokUsername    *string `json:"tiktok_username"`
	YoutubeUsername   *string `json:"youtube_username"`
	SnapchatUsername  *string `json:"snapchat_username"`
	WhatsappNumber    *string `json:"whatsapp_number"`
	FacebookUsername  *string `json:"facebook_username"`
	LinkedinUsername  *string `json:"linkedin_username"`
	CreatedAt         string  `json:"created_at"`
}

func profileToResponse(p *models.Profile) ProfileResponse {
	return ProfileResponse{
		ID:                p.ID,
		Username:          p.Username,
		DisplayName:       p.DisplayName,
		AvatarURL:         p.AvatarURL,
		Bio:               p.Bio,
		BackgroundColor:   p.BackgroundColor,
		TwitterUsername:   p.TwitterUsername,
		InstagramUsername: p.InstagramUsername,
		TiktokUsername:    p.TiktokUsername,
		YoutubeUsername:   p.YoutubeUsername,
		SnapchatUsername:  p.SnapchatUsername,
		WhatsappNumber:    p.WhatsappNumber,
		FacebookUsername:  p.FacebookUsername,
		LinkedinUsername:  p.LinkedinUsername,
		CreatedAt:         p.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Mine returns the caller's editable profile view
// @Summary Get own profile
// @Description Get the authenticated owner's profile with active links in order
// @Tags profiles
// @Produce json
// @Success 200 {object} ProfileView
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /profile [get]
func (h *Handler) Mine(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		apperrors.Respond(c, apperrors.ErrUnauthenticated)
		return
	}

	view, err := h.views.AssembleOwner(c.Request.Context(), accountID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Update edits the caller's profile
// @Summary Update own profile
// @Description Partial update; an empty string clears a field. The username cannot be changed.
// @Tags profiles
// @Accept json
// @Produce json
// @Param request body UpdateInput true "Fields to change"
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Security BearerAuth
// @Router /profile [put]
func (h *Handler) Update(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		apperrors.Respond(c, apperrors.ErrUnauthenticated)
		return
	}

	var req UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.svc.Update(c.Request.Context(), accountID, req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, profileToResponse(profile))
}

// Public returns the read-only view of a profile
// @Summary Get a public profile
// @Description Public view model for a handle; editable when the caller owns it
// @Tags profiles
// @Produce json
// @Param username path string true "Handle"
// @Success 200 {object} ProfileView
// @Failure 404 {object} map[string]string "Profile not found"
// @Router /profiles/{username} [get]
func (h *Handler) Public(c *gin.Context) {
	viewerID, _ := auth.GetAccountID(c)

	view, err := h.views.Assemble(c.Request.Context(), c.Param("username"), viewerID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Provision creates a profile for an externally created account
// @Summary Provision an account profile
// @Description Server-side hook called after an identity provider creates an account
// @Tags profiles
// @Accept json
// @Produce json
// @Param request body ProvisionInput true "Account identity"
// @Success 201 {object} ProfileResponse
// @Failure 400 {object} map[string]interface{} "Missing id or email"
// @Failure 401 {object} map[string]string "Bad provisioning token"
// @Failure 409 {object} map[string]string "Profile or username exists"
// @Router /accounts/provision [post]
func (h *Handler) Provision(c *gin.Context) {
	var req ProvisionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.svc.Provision(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, profileToResponse(profile))
}

// RequireProvisionToken guards the provisioning endpoint with a shared
// secret. An empty token disables the endpoint.
func RequireProvisionToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Provisioning is disabled"})
			c.Abort()
			return
		}
		got := c.GetHeader(ProvisionTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid provisioning token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RegisterRoutes registers the owner's profile routes. The group must be
// authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile", h.Mine)
	rg.PUT("/profile", h.Update)
}

// RegisterPublicRoutes registers routes that need no account
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup, provisionToken string) {
	rg.GET("/profiles/:username", h.Public)
	rg.POST("/accounts/provision", RequireProvisionToken(provisionToken), h.Provision)
}
