package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// DevJWTSecret is used when no secret is configured. config.Validate refuses
// it in production.
const DevJWTSecret = "biolink-dev-secret-change-in-production"

var (
	tokenMu     sync.RWMutex
	jwtSecret   = []byte(DevJWTSecret)
	tokenTTL    = 24 * time.Hour
	tokenIssuer = "biolink"
)

// Configure sets the signing secret and token lifetime. Zero values keep the
// current setting.
func Configure(secret string, ttl time.Duration) {
	tokenMu.Lock()
	defer tokenMu.Unlock()
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func signingKey() ([]byte, time.Duration) {
	tokenMu.RLock()
	defer tokenMu.RUnlock()
	return jwtSecret, tokenTTL
}

// Claims represents the JWT claims
type Claims struct {
	AccountID  string `json:"account_id"`
	Email      string `json:"email"`
	SystemRole string `json:"system_role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for an account
func GenerateToken(accountID string, email string, systemRole string) (string, error) {
	secret, ttl := signingKey()
	claims := &Claims{
		AccountID:  accountID,
		Email:      email,
		SystemRole: systemRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	secret, _ := signingKey()
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
