package content

import (
	"time"

	"membership-portal/internal/domain/plans"
)

type Kind string

const (
	KindTeaching Kind = "teaching"
	KindRetreat  Kind = "retreat"
	KindCourse   Kind = "course"
	KindProduct  Kind = "product"
)

func (k Kind) Valid() bool {
	switch k {
	case KindTeaching, KindRetreat, KindCourse, KindProduct:
		return true
	}
	return false
}

// Item is anything the catalog sells or gates: a teaching, retreat, course
// or shop product. AccessLevel is the lowest tier that may view it in full.
type Item struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Slug    string `gorm:"not null;uniqueIndex" json:"slug"`
	Kind    Kind   `gorm:"type:varchar(20);not null;index" json:"kind"`
	Title   string `gorm:"not null" json:"title"`
	Summary string `json:"summary,omitempty"`
	Body    string `json:"body,omitempty"`

	AccessLevel plans.Tier `gorm:"type:varchar(20);not null;default:'free'" json:"access_level"`
	// PreviewDuration is in seconds; 0 means no preview is offered.
	PreviewDuration int `gorm:"not null;default:0" json:"preview_duration"`

	// PriceCents buys lifetime access. LimitedPriceCents, when > 0, buys
	// LimitedAccessDays of access instead.
	PriceCents        int64  `gorm:"not null;default:0" json:"price_cents"`
	LimitedPriceCents int64  `gorm:"not null;default:0" json:"limited_price_cents,omitempty"`
	LimitedAccessDays int    `gorm:"not null;default:0" json:"limited_access_days,omitempty"`
	Currency          string `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`

	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	Published   bool       `gorm:"not null;default:false;index" json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	Media   []MediaRef    `gorm:"constraint:OnDelete:CASCADE;" json:"media,omitempty"`
	Classes []CourseClass `gorm:"constraint:OnDelete:CASCADE;" json:"classes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PreviewWindow returns how long an anonymous visitor may watch.
func (i Item) PreviewWindow() time.Duration {
	if i.PreviewDuration <= 0 {
		return 0
	}
	return time.Duration(i.PreviewDuration) * time.Second
}

// Price returns the amount for lifetime (limited=false) or time-limited
// access, and whether that option is offered at all.
func (i Item) Price(limited bool) (int64, bool) {
	if limited {
		if i.LimitedPriceCents <= 0 || i.LimitedAccessDays <= 0 {
			return 0, false
		}
		return i.LimitedPriceCents, true
	}
	return i.PriceCents, true
}

// LimitedExpiry is the expiry of a limited grant bought at now.
func (i Item) LimitedExpiry(now time.Time) time.Time {
	return now.AddDate(0, 0, i.LimitedAccessDays)
}

// Free reports whether the item can be registered for without payment.
func (i Item) Free() bool { return i.PriceCents == 0 }

// MediaRef points at a video or audio asset hosted by a third-party delivery
// service.
type MediaRef struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ItemID     uint   `gorm:"not null;index" json:"-"`
	Provider   string `gorm:"type:varchar(20);not null" json:"provider"`
	ExternalID string `gorm:"not null" json:"external_id"`
	Kind       string `gorm:"type:varchar(10);not null;default:'video'" json:"kind"`
	SortIndex  int    `gorm:"not null;default:0" json:"sort_index"`
}

type CourseClass struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ItemID     uint              `gorm:"not null;index:idx_course_classes_item_sort,priority:1" json:"-"`
	Title      string            `gorm:"not null" json:"title"`
	SortIndex  int               `gorm:"not null;default:0;index:idx_course_classes_item_sort,priority:2" json:"sort_index"`
	Components []CourseComponent `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE;" json:"components,omitempty"`
}

type CourseComponent struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ClassID    uint   `gorm:"not null;index" json:"-"`
	Title      string `gorm:"not null" json:"title"`
	Kind       string `gorm:"type:varchar(20);not null;default:'video'" json:"kind"`
	Provider   string `json:"provider,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	SortIndex  int    `gorm:"not null;default:0" json:"sort_index"`
}
