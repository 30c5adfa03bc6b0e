package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Account must be migrated first as other models reference it
func AllModels() []interface{} {
	return []interface{}{
		&Account{},
		&Profile{},
		&Link{},
		&APIKey{},
		&OIDCProvider{},
		&OIDCIdentity{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

// StringPtr returns nil for an empty string, otherwise a pointer to s.
// Optional profile and link columns store NULL rather than "".
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, treating nil as ""
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
