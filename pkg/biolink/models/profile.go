package models

import "time"

// Profile is the public face of an account. Exactly one exists per account and
// it shares the account's ID. Optional fields are stored as NULL when unset.
type Profile struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Username        string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	DisplayName     *string   `json:"display_name"`
	AvatarURL       *string   `json:"avatar_url"`
	Bio             *string   `json:"bio"`
	BackgroundColor *string   `gorm:"size:7" json:"background_color"`

	TwitterUsername   *string `json:"twitter_username"`
	InstagramUsername *string `json:"instagram_username"`
	TiktokUsername    *string `json:"tiktok_username"`
	YoutubeUsername   *string `json:"youtube_username"`
	SnapchatUsername  *string `json:"snapchat_username"`
	WhatsappNumber    *string `json:"whatsapp_number"`
	FacebookUsername  *string `json:"facebook_username"`
	LinkedinUsername  *string `json:"linkedin_username"`

	// Relationships
	Links []Link `gorm:"foreignKey:UserID" json:"links,omitempty"`
}
