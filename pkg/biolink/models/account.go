package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemRole represents an account's system-wide role
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
)

// Account is an authenticated identity. Its ID is shared with the Profile
// provisioned for it.
type Account struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `json:"-"` // Empty for OIDC-only accounts
	Active       bool       `gorm:"not null" json:"active"`
	SystemRole   SystemRole `gorm:"type:varchar(20);default:'user'" json:"system_role"`

	// Relationships
	APIKeys        []APIKey       `gorm:"foreignKey:AccountID" json:"api_keys,omitempty"`
	OIDCIdentities []OIDCIdentity `gorm:"foreignKey:AccountID" json:"oidc_identities,omitempty"`
}

// BeforeCreate assigns a UUID when the caller did not supply one
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
