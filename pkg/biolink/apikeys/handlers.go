package apikeys

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"gorm.io/gorm"
)

// Handler serves key management for the signed-in account
type Handler struct {
	keys *Store
}

// NewHandler creates a new API keys handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{keys: NewStore(db)}
}

// APIKeyResponse represents an API key in responses
type APIKeyResponse struct {
	ID          uint       `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Description string `json:"description"`
}

// CreateAPIKeyResponse includes the full key (only shown once)
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// Create issues a key for the authenticated account
// @Summary Create API key
// @Description The full key is returned once and never again
// @Tags api-keys
// @Accept json
// @Produce json
// @Param request body CreateAPIKeyRequest false "Key description"
// @Success 201 {object} CreateAPIKeyResponse
// @Failure 409 {object} map[string]string "Too many keys"
// @Security BearerAuth
// @Router /api-keys [post]
func (h *Handler) Create(c *gin.Context) {
	accountID, _ := auth.GetAccountID(c)

	var req CreateAPIKeyRequest
	// an empty body means no description
	_ = c.ShouldBindJSON(&req)

	issued, err := h.keys.Issue(c.Request.Context(), accountID, req.Description)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	r := issued.Record
	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: APIKeyResponse{ID: r.ID, KeyPrefix: r.KeyPrefix, Description: r.Description, CreatedAt: r.CreatedAt},
		Key:            issued.Key,
	})
}

// List returns the account's keys without their secret part
// @Summary List API keys
// @Tags api-keys
// @Produce json
// @Success 200 {array} APIKeyResponse
// @Security BearerAuth
// @Router /api-keys [get]
func (h *Handler) List(c *gin.Context) {
	accountID, _ := auth.GetAccountID(c)

	keys, err := h.keys.List(c.Request.Context(), accountID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	out := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		out[i] = APIKeyResponse{
			ID:          k.ID,
			KeyPrefix:   k.KeyPrefix,
			Description: k.Description,
			LastUsedAt:  k.LastUsedAt,
			CreatedAt:   k.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}

// Delete revokes an API key
// @Summary Revoke API key
// @Tags api-keys
// @Produce json
// @Param id path int true "API key ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /api-keys/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	accountID, _ := auth.GetAccountID(c)
	keyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API key ID"})
		return
	}

	if err := h.keys.Revoke(c.Request.Context(), accountID, uint(keyID)); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
}

// RegisterRoutes registers API key routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.DELETE("/api-keys/:id", h.Delete)
}
