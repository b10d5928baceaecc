// Package progress tracks which course components a member has finished.
package progress

import (
	"context"
	"fmt"
	"time"

	"membership-portal/internal/domain/content"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Completion struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_completions_user_component,priority:1" json:"user_id"`
	ComponentID uint      `gorm:"not null;uniqueIndex:idx_completions_user_component,priority:2" json:"component_id"`
	ItemID      uint      `gorm:"not null;index" json:"item_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type ComponentProgress struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type ClassProgress struct {
	ID         uint                `json:"id"`
	Title      string              `json:"title"`
	Completed  int                 `json:"completed"`
	Total      int                 `json:"total"`
	Percent    int                 `json:"percent"`
	Components []ComponentProgress `json:"components"`
}

type Report struct {
	ItemID    uint            `json:"item_id"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Percent   int             `json:"percent"`
	Classes   []ClassProgress `json:"classes"`
}

// Percent is done/total as a whole percentage, 0 for an empty course.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	if done > total {
		done = total
	}
	return done * 100 / total
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// MarkComplete records the component as done. Repeating it is a no-op.
func (s *Service) MarkComplete(ctx context.Context, userID, itemID, componentID uint) error {
	c := Completion{UserID: userID, ComponentID: componentID, ItemID: itemID, CompletedAt: s.now()}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&c).Error; err != nil {
		return fmt.Errorf("progress.MarkComplete: %w", err)
	}
	return nil
}

func (s *Service) Unmark(ctx context.Context, userID, componentID uint) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND component_id = ?", userID, componentID).
		Delete(&Completion{}).Error; err != nil {
		return fmt.Errorf("progress.Unmark: %w", err)
	}
	return nil
}

// ForCourse builds the report for a course whose classes and components are
// loaded.
func (s *Service) ForCourse(ctx context.Context, userID uint, course *content.Item) (*Report, error) {
	var done []uint
	if err := s.db.WithContext(ctx).Model(&Completion{}).
		Where("user_id = ? AND item_id = ?", userID, course.ID).
		Pluck("component_id", &done).Error; err != nil {
		return nil, fmt.Errorf("progress.ForCourse: %w", err)
	}
	return Build(course, done), nil
}

// Build computes progress from the set of completed component ids.
func Build(course *content.Item, completed []uint) *Report {
	doneSet := make(map[uint]bool, len(completed))
	for _, id := range completed {
		doneSet[id] = true
	}

	r := &Report{ItemID: course.ID, Classes: make([]ClassProgress, 0, len(course.Classes))}
	for _, class := range course.Classes {
		cp := ClassProgress{
			ID:         class.ID,
			Title:      class.Title,
			Total:      len(class.Components),
			Components: make([]ComponentProgress, 0, len(class.Components)),
		}
		for _, comp := range class.Components {
			isDone := doneSet[comp.ID]
			if isDone {
				cp.Completed++
			}
			cp.Components = append(cp.Components, ComponentProgress{ID: comp.ID, Title: comp.Title, Done: isDone})
		}
		cp.Percent = Percent(cp.Completed, cp.Total)
		r.Completed += cp.Completed
		r.Total += cp.Total
		r.Classes = append(r.Classes, cp)
	}
	r.Percent = Percent(r.Completed, r.Total)
	return r
}
