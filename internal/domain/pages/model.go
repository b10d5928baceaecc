package pages

import (
	"encoding/json"
	"time"

	"membership-portal/internal/domain/plans"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

type Page struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Slug   string `gorm:"not null;uniqueIndex" json:"slug"`
	Title  string `gorm:"not null" json:"title"`
	Status string `gorm:"type:varchar(16);not null;default:'draft'" json:"status"`
	// RequiredTier gates the whole page; empty means public.
	RequiredTier plans.Tier `gorm:"type:varchar(20)" json:"required_tier,omitempty"`

	Sections []Section `gorm:"foreignKey:PageID;constraint:OnDelete:CASCADE;" json:"sections"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Section struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	PageID    uint            `gorm:"not null;index" json:"-"`
	SortIndex int             `gorm:"not null;default:0;index" json:"sort_index"`
	Type      string          `gorm:"type:varchar(32);not null" json:"type"`
	Props     json.RawMessage `gorm:"type:jsonb;not null;default:'{}'" json:"props"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisibleTo reports whether a member of tier t may read the page.
func (p Page) VisibleTo(t plans.Tier) bool {
	if p.RequiredTier == "" {
		return true
	}
	required, ok := plans.LookupTier(string(p.RequiredTier))
	if !ok {
		return false
	}
	return plans.ParseTier(string(t)).AtLeast(required)
}
