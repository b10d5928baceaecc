package pages

import (
	"context"
	"errors"
	"fmt"

	"membership-portal/internal/apperr"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func withSections(db *gorm.DB) *gorm.DB {
	return db.Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("sort_index ASC") })
}

// BySlug loads a page; drafts are only returned when includeDrafts is set.
func (s *Store) BySlug(ctx context.Context, slug string, includeDrafts bool) (*Page, error) {
	q := withSections(s.db.WithContext(ctx)).Where("slug = ?", slug)
	if !includeDrafts {
		q = q.Where("status = ?", StatusPublished)
	}
	var p Page
	if err := q.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Page not found")
		}
		return nil, fmt.Errorf("pages.BySlug: %w", err)
	}
	return &p, nil
}

func (s *Store) List(ctx context.Context, includeDrafts bool) ([]Page, error) {
	q := s.db.WithContext(ctx).Model(&Page{})
	if !includeDrafts {
		q = q.Where("status = ?", StatusPublished)
	}
	var out []Page
	if err := q.Order("slug ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("pages.List: %w", err)
	}
	return out, nil
}

// Upsert creates the page or replaces an existing one with the same slug,
// sections included.
func (s *Store) Upsert(ctx context.Context, p *Page) error {
	const op = "pages.Upsert"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Page
		err := tx.Where("slug = ?", p.Slug).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(p).Error
		case err != nil:
			return err
		}

		if err := tx.Where("page_id = ?", existing.ID).Delete(&Section{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"title":         p.Title,
			"status":        p.Status,
			"required_tier": p.RequiredTier,
		}).Error; err != nil {
			return err
		}
		for i := range p.Sections {
			p.Sections[i].ID = 0
			p.Sections[i].PageID = existing.ID
		}
		if len(p.Sections) > 0 {
			if err := tx.Create(&p.Sections).Error; err != nil {
				return err
			}
		}
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, slug string) error {
	res := s.db.WithContext(ctx).Where("slug = ?", slug).Delete(&Page{})
	if res.Error != nil {
		return fmt.Errorf("pages.Delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Page not found")
	}
	return nil
}
