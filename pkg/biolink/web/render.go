package web

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/locale"
	"github.com/mikepea/biolink/pkg/biolink/oidc"
	"github.com/mikepea/biolink/pkg/biolink/profiles"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"add": func(a, b int) int {
		return a + b
	},
	"safeHTML": func(s string) template.HTML {
		return template.HTML(s)
	},
	"initials": initials,
}

// Templates parses the embedded page templates
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

// initials returns up to two leading characters of name, uppercased
func initials(name string) string {
	r := []rune(name)
	if len(r) > 2 {
		r = r[:2]
	}
	return strings.ToUpper(string(r))
}

// page is the data every template receives
type page struct {
	Title         string
	Locale        locale.Preference
	Path          string
	SignedIn      bool
	Error         string
	Fields        map[string]string
	Form          map[string]string
	View          *profiles.ProfileView
	PublicURL     string
	Providers     []oidc.ProviderResponse
	SocialFields  []profiles.SocialField
	AvatarUploads bool
}

func (h *Handler) newPage(c *gin.Context, title string) *page {
	_, signedIn := auth.GetAccountID(c)
	return &page{
		Title:    title,
		Locale:   locale.FromContext(c),
		Path:     c.Request.URL.Path,
		SignedIn: signedIn,
		Fields:   map[string]string{},
		Form:     map[string]string{},
	}
}

func (h *Handler) render(c *gin.Context, status int, name string, p *page) {
	c.Render(status, render.HTML{Template: h.tmpl, Name: name, Data: p})
}

// fail records err on p and returns the status it maps to. Store failures
// are logged and shown generically; links owned by someone else read as
// missing.
func fail(c *gin.Context, p *page, err error) int {
	status := apperrors.Status(err)

	var ve *apperrors.ValidationError
	var ae *apperrors.AuthorizationError
	switch {
	case errors.As(err, &ve):
		p.Error = ve.Message
		for k, v := range ve.Fields {
			p.Fields[k] = v
		}
	case errors.As(err, &ae) && !errors.Is(err, apperrors.ErrUnauthenticated):
		status = http.StatusNotFound
		p.Error = "Link not found"
	case status >= http.StatusInternalServerError:
		ownerID, _ := auth.GetAccountID(c)
		log.Error().Err(err).
			Str("owner_id", ownerID).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		p.Error = "Something went wrong. Please try again."
	default:
		p.Error = err.Error()
	}
	return status
}
