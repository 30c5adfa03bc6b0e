package locale

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// CookieName stores the chosen language
	CookieName = "lang"
	contextKey = "locale"
	cookieAge  = 365 * 24 * 60 * 60
)

// Middleware resolves the request's Preference from the lang cookie, then
// Accept-Language, then fallback.
func Middleware(fallback Language) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := fallback
		if v, err := c.Cookie(CookieName); err == nil {
			if l, ok := Parse(v); ok {
				lang = l
			}
		} else if l, ok := FromAcceptLanguage(c.GetHeader("Accept-Language")); ok {
			lang = l
		}
		c.Set(contextKey, Preference{Language: lang})
		c.Next()
	}
}

// FromContext returns the request's Preference
func FromContext(c *gin.Context) Preference {
	if p, ok := c.Get(contextKey); ok {
		if pref, ok := p.(Preference); ok {
			return pref
		}
	}
	return Preference{Language: Default}
}

// SwitchLanguage stores the language from the "lang" form field in a cookie
// and sends the browser back where it came from.
func SwitchLanguage(c *gin.Context) {
	lang, ok := Parse(c.PostForm("lang"))
	if !ok {
		lang = FromContext(c).Other()
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, string(lang), cookieAge, "/", "", false, false)
	c.Redirect(http.StatusSeeOther, backTo(c.PostForm("return_to")))
}

// backTo accepts only local paths
func backTo(path string) string {
	if strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//") && !strings.HasPrefix(path, "/\\") {
		return path
	}
	return "/"
}

// RegisterRoutes registers the language switch on the root router
func RegisterRoutes(r gin.IRoutes) {
	r.POST("/lang", SwitchLanguage)
}
