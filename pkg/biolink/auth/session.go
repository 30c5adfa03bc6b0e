package auth

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/models"
)

const (
	// SessionName is the browser session cookie name
	SessionName = "biolink_session"

	// Paths used by the session gate
	SignInPath    = "/auth"
	DashboardPath = "/dashboard"

	sessionKeyAccountID = "account_id"
	sessionKeyEmail     = "email"
	sessionKeyRole      = "system_role"
)

// DevSessionSecret is used when no session secret is configured
const DevSessionSecret = "biolink-dev-session-secret-change-me"

// Sessions installs the cookie-backed session store
func Sessions(secret string, secure bool) gin.HandlerFunc {
	if secret == "" {
		secret = DevSessionSecret
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// LoadSession copies the session identity, if any, into the request context.
// It never rejects a request.
func LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if id, ok := session.Get(sessionKeyAccountID).(string); ok && id != "" {
			email, _ := session.Get(sessionKeyEmail).(string)
			role, _ := session.Get(sessionKeyRole).(string)
			SetIdentity(c, id, email, role)
		}
		c.Next()
	}
}

// SetSession starts a browser session for account
func SetSession(c *gin.Context, account *models.Account) error {
	session := sessions.Default(c)
	session.Set(sessionKeyAccountID, account.ID)
	session.Set(sessionKeyEmail, account.Email)
	session.Set(sessionKeyRole, string(account.SystemRole))
	SetIdentity(c, account.ID, account.Email, string(account.SystemRole))
	return session.Save()
}

// ClearSession ends the browser session
func ClearSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// Gate applies the redirection rules by path: /dashboard and below need a
// session, /auth and below must not have one. Other paths pass through.
// Must run after LoadSession.
func Gate() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		_, authenticated := GetAccountID(c)

		switch {
		case isUnder(path, DashboardPath) && !authenticated:
			c.Redirect(http.StatusFound, SignInPath)
			c.Abort()
			return
		case isUnder(path, SignInPath) && authenticated && c.Request.Method == http.MethodGet:
			c.Redirect(http.StatusFound, DashboardPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

func isUnder(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
