package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/models"
)

// Gin context keys for the authenticated identity
const (
	ContextKeyAccountID  = "account_id"
	ContextKeyEmail      = "email"
	ContextKeySystemRole = "system_role"
)

// SetIdentity stores the authenticated account on the request context
func SetIdentity(c *gin.Context, accountID, email, systemRole string) {
	c.Set(ContextKeyAccountID, accountID)
	c.Set(ContextKeyEmail, email)
	c.Set(ContextKeySystemRole, systemRole)
}

// GetAccountID returns the authenticated account id, if any
func GetAccountID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyAccountID)
	return id, id != ""
}

// GetSystemRole returns the authenticated account's role, if any
func GetSystemRole(c *gin.Context) (string, bool) {
	role := c.GetString(ContextKeySystemRole)
	return role, role != ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The message is suitable for a 401 body when ok is false.
func BearerToken(c *gin.Context) (token string, msg string, ok bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "Authorization header required", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", "Invalid authorization header format", false
	}
	return token, "", true
}

// AuthMiddleware requires a valid JWT bearer token
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		claims, err := ValidateToken(token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "Token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		SetIdentity(c, claims.AccountID, claims.Email, claims.SystemRole)
		c.Next()
	}
}

// SessionOrToken accepts an identity already loaded from the session and
// otherwise requires a JWT bearer token
func SessionOrToken() gin.HandlerFunc {
	bearer := AuthMiddleware()
	return func(c *gin.Context) {
		if _, ok := GetAccountID(c); ok {
			c.Next()
			return
		}
		bearer(c)
	}
}

// RequireAdmin lets only admin accounts through. It must run after an
// authenticating middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetSystemRole(c)
		switch {
		case !ok:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		case role != string(models.SystemRoleAdmin):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		default:
			c.Next()
		}
	}
}
