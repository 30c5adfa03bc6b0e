// Package web serves the server-rendered pages: the public profile, the
// owner's dashboard and the sign-in forms.
package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/links"
	"github.com/mikepea/biolink/pkg/biolink/locale"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/mikepea/biolink/pkg/biolink/oidc"
	"github.com/mikepea/biolink/pkg/biolink/profiles"
	"github.com/rs/zerolog/log"
)

// AvatarSaver stores an uploaded avatar and returns its public URL
type AvatarSaver interface {
	Enabled() bool
	Save(ctx context.Context, ownerID string, data []byte) (string, error)
}

// ProviderLister lists the external sign-in providers to offer
type ProviderLister interface {
	EnabledProviders() []oidc.ProviderResponse
}

// Deps are the services the pages are built from. Avatars and Providers
// may be nil.
type Deps struct {
	Auth      *auth.Service
	Profiles  *profiles.Service
	Views     *profiles.Assembler
	Links     *links.Service
	Avatars   AvatarSaver
	Providers ProviderLister
	BaseURL   string
}

// Handler renders HTML pages
type Handler struct {
	Deps
	tmpl *template.Template
}

// NewHandler creates a new web handler
func NewHandler(deps Deps) *Handler {
	deps.BaseURL = strings.TrimRight(deps.BaseURL, "/")
	return &Handler{Deps: deps, tmpl: Templates()}
}

// Home renders the landing page
func (h *Handler) Home(c *gin.Context) {
	h.render(c, http.StatusOK, "home.html", h.newPage(c, ""))
}

// Profile renders the public page for a handle
func (h *Handler) Profile(c *gin.Context) {
	viewerID, _ := auth.GetAccountID(c)

	view, err := h.Views.Assemble(c.Request.Context(), c.Param("username"), viewerID)
	if err != nil {
		h.renderFailure(c, err)
		return
	}

	p := h.newPage(c, view.Name())
	p.View = view
	h.render(c, http.StatusOK, "profile.html", p)
}

// renderFailure shows the not-found page for unknown handles and the error
// page, with a retry link, for everything else.
func (h *Handler) renderFailure(c *gin.Context, err error) {
	var nf *apperrors.NotFoundError
	if errors.As(err, &nf) {
		h.render(c, http.StatusNotFound, "not_found.html", h.newPage(c, "404"))
		return
	}
	p := h.newPage(c, "")
	h.render(c, fail(c, p, err), "error.html", p)
}

// NotFound renders the not-found page for unmatched routes
func (h *Handler) NotFound(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	h.render(c, http.StatusNotFound, "not_found.html", h.newPage(c, "404"))
}

// SignIn renders the sign-in form
func (h *Handler) SignIn(c *gin.Context) {
	h.render(c, http.StatusOK, "signin.html", h.signInPage(c))
}

func (h *Handler) signInPage(c *gin.Context) *page {
	p := h.newPage(c, pageTitle(c, "sign_in"))
	if h.Providers != nil {
		p.Providers = h.Providers.EnabledProviders()
	}
	return p
}

// SignUp renders the sign-up form
func (h *Handler) SignUp(c *gin.Context) {
	h.render(c, http.StatusOK, "signup.html", h.newPage(c, pageTitle(c, "sign_up")))
}

// Login signs in from the form and starts a session
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		p := h.signInPage(c)
		p.Form["email"] = c.PostForm("email")
		p.Error = "Email and password are required"
		h.render(c, http.StatusBadRequest, "signin.html", p)
		return
	}

	account, err := h.Auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		p := h.signInPage(c)
		p.Form["email"] = req.Email
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrInvalidCredentials) {
			p.Error = "Invalid email or password"
		} else {
			status = fail(c, p, err)
		}
		h.render(c, status, "signin.html", p)
		return
	}

	h.startSession(c, account)
}

// Register creates an account from the sign-up form
func (h *Handler) Register(c *gin.Context) {
	var req auth.SignUpInput
	if err := c.ShouldBind(&req); err != nil {
		p := h.newPage(c, pageTitle(c, "sign_up"))
		p.Error = err.Error()
		h.render(c, http.StatusBadRequest, "signup.html", p)
		return
	}

	account, err := h.Auth.SignUp(c.Request.Context(), req)
	if err != nil {
		p := h.newPage(c, pageTitle(c, "sign_up"))
		p.Form["display_name"] = req.DisplayName
		p.Form["username"] = req.Username
		p.Form["email"] = req.Email
		h.render(c, fail(c, p, err), "signup.html", p)
		return
	}

	h.startSession(c, account)
}

func (h *Handler) startSession(c *gin.Context, account *models.Account) {
	if err := auth.SetSession(c, account); err != nil {
		p := h.signInPage(c)
		h.render(c, fail(c, p, apperrors.Store("save session", err)), "signin.html", p)
		return
	}
	c.Redirect(http.StatusSeeOther, auth.DashboardPath)
}

// Logout ends the session
func (h *Handler) Logout(c *gin.Context) {
	if err := auth.ClearSession(c); err != nil {
		log.Warn().Err(err).Msg("failed to clear session")
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// pageTitle translates a catalog key for the request's language
func pageTitle(c *gin.Context, key string) string {
	return locale.FromContext(c).T(key)
}
