package oidc

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const sessionKeyFlow = "oidc_flow"

// ErrInvalidState is returned when the callback state does not match the session
var ErrInvalidState = errors.New("invalid state")

// Handler runs sign-in through external identity providers
type Handler struct {
	db          *gorm.DB
	callbackURL string
	provisioner Provisioner
	clients     *registry
}

// NewHandler creates the handler and discovers every enabled provider.
// Providers whose issuer cannot be reached stay listed but not ready.
func NewHandler(db *gorm.DB, baseURL string, provisioner Provisioner) *Handler {
	h := &Handler{
		db:          db,
		callbackURL: strings.TrimRight(baseURL, "/") + "/api/oidc/callback",
		provisioner: provisioner,
		clients:     newRegistry(),
	}

	var providers []models.OIDCProvider
	if err := db.Where("enabled = ?", true).Find(&providers).Error; err != nil {
		log.Warn().Err(err).Msg("failed to load oidc providers")
		return h
	}
	for _, p := range providers {
		h.refresh(p)
	}
	return h
}

// refresh rediscovers p, or forgets it when disabled
func (h *Handler) refresh(p models.OIDCProvider) error {
	h.clients.drop(p.ID)
	if !p.Enabled {
		return nil
	}
	err := h.clients.discover(p, h.callbackURL)
	if err != nil {
		log.Warn().Err(err).Str("provider", p.Slug).Msg("failed to initialise oidc provider")
	}
	return err
}

// ProviderResponse represents an OIDC provider in API responses
type ProviderResponse struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Enabled bool   `json:"enabled"`
}

// EnabledProviders returns providers that can be offered on the sign-in page
func (h *Handler) EnabledProviders() []ProviderResponse {
	var providers []models.OIDCProvider
	if err := h.db.Where("enabled = ?", true).Order("name").Find(&providers).Error; err != nil {
		log.Warn().Err(err).Msg("failed to list oidc providers")
	}

	responses := make([]ProviderResponse, len(providers))
	for i, p := range providers {
		responses[i] = ProviderResponse{ID: p.ID, Name: p.Name, Slug: p.Slug, Enabled: p.Enabled}
	}
	return responses
}

// ListProviders returns all enabled OIDC providers (public endpoint)
// @Summary List identity providers
// @Tags oidc
// @Produce json
// @Success 200 {array} ProviderResponse
// @Router /oidc/providers [get]
func (h *Handler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, h.EnabledProviders())
}

// SafeReturnURL accepts only same-site relative paths
func SafeReturnURL(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	return raw
}

// flow is the pending sign-in kept in the session between the redirect to
// the provider and its callback
type flow struct {
	State      string `json:"state"`
	Nonce      string `json:"nonce"`
	ProviderID uint   `json:"provider_id"`
	ReturnURL  string `json:"return_url"`
}

func (f flow) save(c *gin.Context) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	session := sessions.Default(c)
	session.Set(sessionKeyFlow, string(raw))
	return session.Save()
}

// takeFlow pops the pending flow and checks it against the callback state
func takeFlow(c *gin.Context) (flow, error) {
	var f flow

	session := sessions.Default(c)
	raw, _ := session.Get(sessionKeyFlow).(string)
	session.Delete(sessionKeyFlow)
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to clear oidc flow")
	}

	if raw == "" || json.Unmarshal([]byte(raw), &f) != nil {
		return f, ErrInvalidState
	}
	if state := c.Query("state"); state == "" || state != f.State {
		return f, ErrInvalidState
	}
	return f, nil
}

type startError struct {
	status int
	msg    string
}

// start records a new flow for slug and returns the provider redirect
func (h *Handler) start(c *gin.Context, slug, returnURL string) (string, *startError) {
	var provider models.OIDCProvider
	if err := h.db.Where("slug = ? AND enabled = ?", slug, true).First(&provider).Error; err != nil {
		return "", &startError{http.StatusNotFound, "Provider not found"}
	}
	cl, ok := h.clients.get(provider.ID)
	if !ok {
		return "", &startError{http.StatusServiceUnavailable, "Provider not configured"}
	}

	f := flow{
		State:      randomToken(24),
		Nonce:      randomToken(24),
		ProviderID: provider.ID,
		ReturnURL:  SafeReturnURL(returnURL),
	}
	if err := f.save(c); err != nil {
		return "", &startError{http.StatusInternalServerError, "Failed to save session"}
	}
	return cl.oauth.AuthCodeURL(f.State, oidc.Nonce(f.Nonce)), nil
}

// AuthURLRequest represents a request for an auth URL
type AuthURLRequest struct {
	ReturnURL string `json:"return_url"`
}

// GetAuthURL returns the authorization URL for an OIDC provider
// @Summary Start provider sign-in
// @Tags oidc
// @Accept json
// @Produce json
// @Param slug path string true "Provider slug"
// @Param request body AuthURLRequest false "Where to go after sign-in"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /oidc/providers/{slug}/auth [post]
func (h *Handler) GetAuthURL(c *gin.Context) {
	var req AuthURLRequest
	// body is optional
	_ = c.ShouldBindJSON(&req)

	url, serr := h.start(c, c.Param("slug"), req.ReturnURL)
	if serr != nil {
		c.JSON(serr.status, gin.H{"error": serr.msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

// Login redirects a browser straight to the provider. After the callback the
// browser lands on the dashboard.
func (h *Handler) Login(c *gin.Context) {
	url, serr := h.start(c, c.Param("slug"), auth.DashboardPath)
	if serr != nil {
		c.JSON(serr.status, gin.H{"error": serr.msg})
		return
	}
	c.Redirect(http.StatusFound, url)
}

type idClaims struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (cl idClaims) displayName() string {
	if cl.Name != "" {
		return cl.Name
	}
	return strings.TrimSpace(cl.GivenName + " " + cl.FamilyName)
}

// Callback finishes the code flow, signs the account in and either
// redirects to the flow's return URL or answers with a bearer token
// @Summary Provider callback
// @Tags oidc
// @Produce json
// @Param state query string true "State"
// @Param code query string true "Authorization code"
// @Success 200 {object} auth.AuthResponse
// @Success 302 "Redirect to the requested return URL"
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /oidc/callback [get]
func (h *Handler) Callback(c *gin.Context) {
	f, err := takeFlow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state"})
		return
	}

	cl, ok := h.clients.get(f.ProviderID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown provider"})
		return
	}

	code := c.Query("code")
	if code == "" {
		reason := c.Query("error_description")
		if reason == "" {
			reason = c.Query("error")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication failed: " + reason})
		return
	}

	ctx := c.Request.Context()
	token, err := cl.oauth.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Uint("provider_id", f.ProviderID).Msg("oidc token exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to exchange token"})
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		c.JSON(http.StatusBadGateway, gin.H{"error": "No ID token in response"})
		return
	}
	idToken, err := cl.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Failed to verify ID token"})
		return
	}
	if idToken.Nonce != f.Nonce {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid nonce"})
		return
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to parse claims"})
		return
	}
	if claims.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email not provided by identity provider"})
		return
	}

	var provider models.OIDCProvider
	if err := h.db.First(&provider, f.ProviderID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown provider"})
		return
	}

	account, err := h.ResolveAccount(ctx, &provider, Identity{Subject: idToken.Subject, Email: claims.Email, Name: claims.displayName()})
	switch {
	case errors.Is(err, ErrNotProvisioned):
		c.JSON(http.StatusForbidden, gin.H{"error": "No account for this identity"})
		return
	case err != nil:
		log.Error().Err(err).Str("provider", provider.Slug).Msg("failed to resolve oidc account")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process account"})
		return
	case !account.Active:
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})
		return
	}

	if err := auth.SetSession(c, account); err != nil {
		log.Warn().Err(err).Str("account_id", account.ID).Msg("failed to save session")
	}
	if f.ReturnURL != "" {
		c.Redirect(http.StatusFound, f.ReturnURL)
		return
	}

	bearer, err := auth.GenerateToken(account.ID, account.Email, string(account.SystemRole))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, auth.AuthResponse{
		Token:   bearer,
		Account: auth.AccountResponse{ID: account.ID, Email: account.Email, SystemRole: string(account.SystemRole)},
	})
}

// RegisterRoutes registers public OIDC routes. They need the session middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/providers", h.ListProviders)
	rg.POST("/providers/:slug/auth", h.GetAuthURL)
	rg.GET("/providers/:slug/login", h.Login)
	rg.GET("/callback", h.Callback)
}

func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
