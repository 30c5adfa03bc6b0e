package apikeys

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// CombinedAuthMiddleware authenticates via session, JWT or API key.
// A session identity loaded earlier in the chain wins. Otherwise the
// Authorization header must carry "Bearer <token>", where tokens starting
// with KeyScheme are API keys and anything else is a JWT.
func CombinedAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	keys := NewStore(db)

	return func(c *gin.Context) {
		if _, ok := auth.GetAccountID(c); ok {
			c.Next()
			return
		}

		token, msg, ok := auth.BearerToken(c)
		if !ok {
			unauthorized(c, msg)
			return
		}

		if !IsKey(token) {
			claims, err := auth.ValidateToken(token)
			if err != nil {
				unauthorized(c, "Invalid token")
				return
			}
			auth.SetIdentity(c, claims.AccountID, claims.Email, claims.SystemRole)
			c.Next()
			return
		}

		record, account, err := keys.Authenticate(c.Request.Context(), token)
		switch {
		case errors.Is(err, ErrInactiveAccount):
			unauthorized(c, "Account is deactivated")
			return
		case err != nil:
			if !errors.Is(err, ErrUnknownKey) {
				log.Error().Err(err).Msg("api key lookup failed")
			}
			unauthorized(c, "Invalid API key")
			return
		}

		go keys.Touch(record.ID)

		auth.SetIdentity(c, account.ID, account.Email, string(account.SystemRole))
		c.Next()
	}
}
