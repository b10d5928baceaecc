package registrations

import (
	"time"

	"membership-portal/internal/domain/content"
)

type AccessType string

const (
	Lifetime AccessType = "lifetime"
	Limited  AccessType = "limited"
)

func ParseAccessType(s string) (AccessType, bool) {
	switch AccessType(s) {
	case "", Lifetime:
		return Lifetime, true
	case Limited:
		return Limited, true
	}
	return "", false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Registration is a user's grant to one catalog item. There is at most one
// row per (user, item, access type); granting again updates it.
type Registration struct {
	ID     uint          `gorm:"primaryKey" json:"id"`
	UserID uint          `gorm:"not null;uniqueIndex:idx_registrations_grant,priority:1" json:"user_id"`
	ItemID uint          `gorm:"not null;uniqueIndex:idx_registrations_grant,priority:2;index" json:"item_id"`
	Item   *content.Item `gorm:"constraint:OnDelete:CASCADE;" json:"item,omitempty"`

	AccessType      AccessType `gorm:"type:varchar(16);not null;uniqueIndex:idx_registrations_grant,priority:3" json:"access_type"`
	AccessExpiresAt *time.Time `json:"access_expires_at"`
	Status          Status     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`

	OrderID *uint `gorm:"index" json:"order_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActiveAt reports whether the grant gives access at now. Expiry is only
// ever evaluated here, at read time.
func (r Registration) ActiveAt(now time.Time) bool {
	if r.Status != StatusConfirmed && r.Status != StatusCompleted {
		return false
	}
	if r.AccessType == Lifetime {
		return true
	}
	return r.AccessExpiresAt != nil && now.Before(*r.AccessExpiresAt)
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is a forward move. Staying in the
// same status is allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
