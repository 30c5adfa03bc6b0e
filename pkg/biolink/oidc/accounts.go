package oidc

import (
	"context"
	"errors"
	"strings"

	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/mikepea/biolink/pkg/biolink/profiles"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrNotProvisioned is returned for an unknown identity at a provider
// without auto-provisioning
var ErrNotProvisioned = errors.New("no account for this identity")

// Provisioner creates the profile for an auto-provisioned account
type Provisioner interface {
	AvailableUsername(ctx context.Context, base string) (string, error)
	CreateProfile(tx *gorm.DB, accountID, username, displayName string) error
}

// Identity is the verified subject returned by a provider
type Identity struct {
	Subject string
	Email   string
	Name    string
}

func (id Identity) link(accountID string, providerID uint) *models.OIDCIdentity {
	return &models.OIDCIdentity{
		AccountID:  accountID,
		ProviderID: providerID,
		Subject:    id.Subject,
		Email:      id.Email,
	}
}

// ResolveAccount finds the account for a verified identity. Lookup is by
// provider subject first, then by email (linking the identity). Unknown
// identities get a new account and profile when the provider auto-provisions.
func (h *Handler) ResolveAccount(ctx context.Context, provider *models.OIDCProvider, ident Identity) (*models.Account, error) {
	db := h.db.WithContext(ctx)
	ident.Email = strings.ToLower(strings.TrimSpace(ident.Email))

	var known models.OIDCIdentity
	err := db.Where("provider_id = ? AND subject = ?", provider.ID, ident.Subject).First(&known).Error
	switch {
	case err == nil:
		var account models.Account
		if err := db.First(&account, "id = ?", known.AccountID).Error; err != nil {
			return nil, err
		}
		return &account, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	var account models.Account
	err = db.Where("email = ?", ident.Email).First(&account).Error
	switch {
	case err == nil:
		if err := db.Create(ident.link(account.ID, provider.ID)).Error; err != nil {
			return nil, err
		}
		return &account, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if !provider.AutoProvision || h.provisioner == nil {
		return nil, ErrNotProvisioned
	}
	return h.provision(ctx, provider, ident)
}

// provision creates account, identity link and profile in one transaction
func (h *Handler) provision(ctx context.Context, provider *models.OIDCProvider, ident Identity) (*models.Account, error) {
	username, err := h.provisioner.AvailableUsername(ctx, profiles.UsernameFromEmail(ident.Email))
	if err != nil {
		return nil, err
	}
	displayName := ident.Name
	if displayName == "" {
		displayName = username
	}

	account := models.Account{Email: ident.Email, Active: true, SystemRole: models.SystemRoleUser}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		if err := tx.Create(ident.link(account.ID, provider.ID)).Error; err != nil {
			return err
		}
		return h.provisioner.CreateProfile(tx, account.ID, username, displayName)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("account_id", account.ID).Str("provider", provider.Slug).Str("username", username).Msg("account provisioned from oidc")
	return &account, nil
}
