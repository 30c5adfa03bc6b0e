package models

import (
	"time"

	"gorm.io/gorm"
)

// OIDCProvider represents an external OIDC identity provider configuration
type OIDCProvider struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Name          string         `gorm:"uniqueIndex;not null" json:"name"` // Display name (e.g., "Google")
	Slug          string         `gorm:"uniqueIndex;not null" json:"slug"` // URL-safe identifier
	Issuer        string         `gorm:"not null" json:"issuer"`
	ClientID      string         `gorm:"not null" json:"client_id"`
	ClientSecret  string         `gorm:"not null" json:"-"`
	Scopes        string         `gorm:"default:'openid profile email'" json:"scopes"` // Space-separated
	Enabled       bool           `json:"enabled"`
	AutoProvision bool           `json:"auto_provision"` // Create account + profile on first login
}

// OIDCIdentity links an account to a subject at an OIDC provider
type OIDCIdentity struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	AccountID  string    `gorm:"size:36;not null;index" json:"account_id"`
	ProviderID uint      `gorm:"not null;uniqueIndex:idx_provider_subject" json:"provider_id"`
	Subject    string    `gorm:"not null;uniqueIndex:idx_provider_subject" json:"subject"` // sub claim
	Email      string    `json:"email"`

	// Relationships
	Provider OIDCProvider `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}
