package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Link is one entry in a profile's curated list. Links are never physically
// removed: IsActive=false hides them from every read path.
type Link struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UserID      string    `gorm:"size:36;not null;index:idx_links_owner_order,priority:1" json:"user_id"`
	Title       string    `gorm:"not null" json:"title"`
	URL         string    `gorm:"not null" json:"url"`
	Description *string   `json:"description"`
	IsActive    bool      `gorm:"not null;index:idx_links_owner_order,priority:2" json:"is_active"`
	OrderIndex  int       `gorm:"not null;index:idx_links_owner_order,priority:3" json:"order_index"`
}

// BeforeCreate assigns a UUID when the caller did not supply one
func (l *Link) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// OrderKey returns the identifier used in ordering write-sets
func (l *Link) OrderKey() string {
	return l.ID
}

// SetOrderIndex assigns the link's display position
func (l *Link) SetOrderIndex(i int) {
	l.OrderIndex = i
}
