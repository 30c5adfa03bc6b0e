package oidc

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*$`)

// AdminProviderResponse includes all provider details for admins. Ready is
// false while the issuer has not been discovered.
type AdminProviderResponse struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Issuer        string `json:"issuer"`
	ClientID      string `json:"client_id"`
	Scopes        string `json:"scopes"`
	Enabled       bool   `json:"enabled"`
	AutoProvision bool   `json:"auto_provision"`
	Ready         bool   `json:"ready"`
	CreatedAt     string `json:"created_at"`
}

func (h *Handler) adminResponse(p models.OIDCProvider) AdminProviderResponse {
	return AdminProviderResponse{
		ID:            p.ID,
		Name:          p.Name,
		Slug:          p.Slug,
		Issuer:        p.Issuer,
		ClientID:      p.ClientID,
		Scopes:        p.Scopes,
		Enabled:       p.Enabled,
		AutoProvision: p.AutoProvision,
		Ready:         h.clients.ready(p.ID),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

// CreateProviderRequest represents a request to create an OIDC provider
type CreateProviderRequest struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Issuer        string `json:"issuer"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	Scopes        string `json:"scopes"`
	Enabled       bool   `json:"enabled"`
	AutoProvision bool   `json:"auto_provision"`
}

func (r *CreateProviderRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Slug = strings.ToLower(strings.TrimSpace(r.Slug))
	r.Issuer = strings.TrimRight(strings.TrimSpace(r.Issuer), "/")
	r.Scopes = strings.Join(strings.Fields(r.Scopes), " ")
}

// Validate checks the provider settings
func (r CreateProviderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Slug, validation.Required, validation.Length(1, 50),
			validation.Match(slugPattern).Error("must contain only lowercase letters, digits and hyphens")),
		validation.Field(&r.Issuer, validation.Required, is.URL),
		validation.Field(&r.ClientID, validation.Required),
		validation.Field(&r.ClientSecret, validation.Required),
	)
}

// UpdateProviderRequest is a partial provider edit. The slug is fixed.
type UpdateProviderRequest struct {
	Name          *string `json:"name"`
	Issuer        *string `json:"issuer"`
	ClientID      *string `json:"client_id"`
	ClientSecret  *string `json:"client_secret"`
	Scopes        *string `json:"scopes"`
	Enabled       *bool   `json:"enabled"`
	AutoProvision *bool   `json:"auto_provision"`
}

// Validate rejects blanking required settings
func (r UpdateProviderRequest) Validate() error {
	notBlank := validation.NilOrNotEmpty.Error("cannot be blank")
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, notBlank, validation.Length(1, 100)),
		validation.Field(&r.Issuer, notBlank, is.URL),
		validation.Field(&r.ClientID, notBlank),
		validation.Field(&r.ClientSecret, notBlank),
	)
}

func (r UpdateProviderRequest) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if r.Name != nil {
		cols["name"] = strings.TrimSpace(*r.Name)
	}
	if r.Issuer != nil {
		cols["issuer"] = strings.TrimRight(strings.TrimSpace(*r.Issuer), "/")
	}
	if r.ClientID != nil {
		cols["client_id"] = *r.ClientID
	}
	if r.ClientSecret != nil {
		cols["client_secret"] = *r.ClientSecret
	}
	if r.Scopes != nil {
		cols["scopes"] = strings.Join(strings.Fields(*r.Scopes), " ")
	}
	if r.Enabled != nil {
		cols["enabled"] = *r.Enabled
	}
	if r.AutoProvision != nil {
		cols["auto_provision"] = *r.AutoProvision
	}
	return cols
}

func (h *Handler) provider(c *gin.Context) (*models.OIDCProvider, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, apperrors.Validation("Invalid provider ID")
	}
	var p models.OIDCProvider
	if err := h.db.WithContext(c.Request.Context()).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Provider")
		}
		return nil, apperrors.Store("load provider", err)
	}
	return &p, nil
}

// ListProvidersAdmin returns all OIDC providers for admin
// @Summary List identity providers (admin)
// @Tags admin
// @Produce json
// @Success 200 {array} AdminProviderResponse
// @Security BearerAuth
// @Router /admin/oidc/providers [get]
func (h *Handler) ListProvidersAdmin(c *gin.Context) {
	var providers []models.OIDCProvider
	if err := h.db.WithContext(c.Request.Context()).Order("name").Find(&providers).Error; err != nil {
		apperrors.Respond(c, apperrors.Store("list providers", err))
		return
	}

	responses := make([]AdminProviderResponse, len(providers))
	for i, p := range providers {
		responses[i] = h.adminResponse(p)
	}
	c.JSON(http.StatusOK, responses)
}

// CreateProvider creates a new OIDC provider and discovers it when enabled
// @Summary Create identity provider
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateProviderRequest true "Provider"
// @Success 201 {object} AdminProviderResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /admin/oidc/providers [post]
func (h *Handler) CreateProvider(c *gin.Context) {
	var req CreateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.normalize()
	if err := apperrors.FromValidation(req.Validate()); err != nil {
		apperrors.Respond(c, err)
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var taken int64
	if err := db.Unscoped().Model(&models.OIDCProvider{}).
		Where("slug = ? OR name = ?", req.Slug, req.Name).Count(&taken).Error; err != nil {
		apperrors.Respond(c, apperrors.Store("check provider", err))
		return
	}
	if taken > 0 {
		apperrors.Respond(c, apperrors.Conflict("Provider name or slug already in use"))
		return
	}

	p := models.OIDCProvider{
		Name:          req.Name,
		Slug:          req.Slug,
		Issuer:        req.Issuer,
		ClientID:      req.ClientID,
		ClientSecret:  req.ClientSecret,
		Scopes:        req.Scopes,
		Enabled:       req.Enabled,
		AutoProvision: req.AutoProvision,
	}
	if err := db.Create(&p).Error; err != nil {
		apperrors.Respond(c, apperrors.Store("create provider", err))
		return
	}

	if err := h.refresh(p); err != nil {
		c.JSON(http.StatusCreated, gin.H{
			"provider": h.adminResponse(p),
			"warning":  "Provider created but failed to initialize: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, h.adminResponse(p))
}

// UpdateProvider updates an OIDC provider and rediscovers it
// @Summary Update identity provider
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Provider ID"
// @Param request body UpdateProviderRequest true "Changes"
// @Success 200 {object} AdminProviderResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/oidc/providers/{id} [put]
func (h *Handler) UpdateProvider(c *gin.Context) {
	p, err := h.provider(c)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	var req UpdateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := apperrors.FromValidation(req.Validate()); err != nil {
		apperrors.Respond(c, err)
		return
	}

	db := h.db.WithContext(c.Request.Context())
	if cols := req.columns(); len(cols) > 0 {
		if err := db.Model(p).Updates(cols).Error; err != nil {
			apperrors.Respond(c, apperrors.Store("update provider", err))
			return
		}
		if err := db.First(p, p.ID).Error; err != nil {
			apperrors.Respond(c, apperrors.Store("reload provider", err))
			return
		}
	}

	// failure leaves the provider listed but not ready
	_ = h.refresh(*p)
	c.JSON(http.StatusOK, h.adminResponse(*p))
}

// DeleteProvider deletes an OIDC provider and its identity links
// @Summary Delete identity provider
// @Tags admin
// @Produce json
// @Param id path int true "Provider ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/oidc/providers/{id} [delete]
func (h *Handler) DeleteProvider(c *gin.Context) {
	p, err := h.provider(c)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	h.clients.drop(p.ID)
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_id = ?", p.ID).Delete(&models.OIDCIdentity{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(p).Error
	})
	if err != nil {
		apperrors.Respond(c, apperrors.Store("delete provider", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Provider deleted"})
}

// RegisterAdminRoutes registers admin OIDC routes
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/providers", h.ListProvidersAdmin)
	rg.POST("/providers", h.CreateProvider)
	rg.PUT("/providers/:id", h.UpdateProvider)
	rg.DELETE("/providers/:id", h.DeleteProvider)
}
