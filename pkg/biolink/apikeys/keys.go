package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// KeyScheme starts every key so bearer tokens can be told apart from JWTs
	KeyScheme = "blk_"
	// KeyLength is the random part in bytes (hex encoded after the scheme)
	KeyLength = 32
	// KeyPrefixLength is how much of a key is stored in clear for display
	KeyPrefixLength = 12
	// MaxKeysPerAccount caps how many live keys one account may hold
	MaxKeysPerAccount = 20
)

// ErrInactiveAccount is returned when a key belongs to a deactivated account
var ErrInactiveAccount = errors.New("account is inactive")

// ErrUnknownKey is returned for keys that were never issued or were revoked
var ErrUnknownKey = errors.New("unknown api key")

// IsKey reports whether a bearer token looks like an API key
func IsKey(token string) bool {
	return strings.HasPrefix(token, KeyScheme)
}

func newKey() (string, error) {
	b := make([]byte, KeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return KeyScheme + hex.EncodeToString(b), nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Store issues and checks API keys. Only a key's hash is persisted.
type Store struct {
	db *gorm.DB
}

// NewStore creates a key store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Issued is a freshly created key. Key is never retrievable again.
type Issued struct {
	Record models.APIKey
	Key    string
}

// Issue creates a key for accountID unless it already holds the maximum
func (s *Store) Issue(ctx context.Context, accountID, description string) (*Issued, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.APIKey{}).Where("account_id = ?", accountID).Count(&count).Error; err != nil {
		return nil, apperrors.Store("count api keys", err)
	}
	if count >= MaxKeysPerAccount {
		return nil, apperrors.Conflict("API key limit reached")
	}

	key, err := newKey()
	if err != nil {
		return nil, apperrors.Store("generate api key", err)
	}
	record := models.APIKey{
		AccountID:   accountID,
		KeyHash:     hashKey(key),
		KeyPrefix:   key[:KeyPrefixLength],
		Description: strings.TrimSpace(description),
	}
	if err := db.Create(&record).Error; err != nil {
		return nil, apperrors.Store("create api key", err)
	}
	return &Issued{Record: record, Key: key}, nil
}

// List returns accountID's keys, newest first
func (s *Store) List(ctx context.Context, accountID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, apperrors.Store("list api keys", err)
	}
	return keys, nil
}

// Revoke deletes one of accountID's keys. Keys of other accounts are
// reported as missing.
func (s *Store) Revoke(ctx context.Context, accountID string, keyID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND account_id = ?", keyID, accountID).Delete(&models.APIKey{})
	if res.Error != nil {
		return apperrors.Store("revoke api key", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("API key")
	}
	return nil
}

// Authenticate resolves key to its record and active account
func (s *Store) Authenticate(ctx context.Context, key string) (*models.APIKey, *models.Account, error) {
	db := s.db.WithContext(ctx)

	var record models.APIKey
	if err := db.Where("key_hash = ?", hashKey(key)).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUnknownKey
		}
		return nil, nil, err
	}

	var account models.Account
	if err := db.First(&account, "id = ?", record.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUnknownKey
		}
		return nil, nil, err
	}
	if !account.Active {
		return nil, nil, ErrInactiveAccount
	}
	return &record, &account, nil
}

// Touch records a use of keyID. Failures are logged only.
func (s *Store) Touch(keyID uint) {
	err := s.db.Model(&models.APIKey{}).Where("id = ?", keyID).Update("last_used_at", time.Now()).Error
	if err != nil {
		log.Warn().Err(err).Uint("api_key_id", keyID).Msg("failed to record api key use")
	}
}
