package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"membership-portal/internal/apperr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Cache is the subset of internal/cache the store needs.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

const defaultCacheTTL = 5 * time.Minute

type Store struct {
	db    *gorm.DB
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewStore builds a catalog store. cache may be nil.
func NewStore(db *gorm.DB, cache Cache, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, cache: cache, ttl: defaultCacheTTL, log: log}
}

func publishedKey(slug string) string { return "content:published:" + slug }

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Media", func(db *gorm.DB) *gorm.DB { return db.Order("sort_index ASC, id ASC") }).
		Preload("Classes", func(db *gorm.DB) *gorm.DB { return db.Order("sort_index ASC, id ASC") }).
		Preload("Classes.Components", func(db *gorm.DB) *gorm.DB { return db.Order("sort_index ASC, id ASC") })
}

// PublishedBySlug loads a published item. Item metadata is cached; user
// tiers and registrations never are.
func (s *Store) PublishedBySlug(ctx context.Context, slug string) (*Item, error) {
	const op = "content.PublishedBySlug"

	if s.cache != nil {
		var cached Item
		found, err := s.cache.Get(ctx, publishedKey(slug), &cached)
		if err != nil {
			s.log.Warn("content cache read failed", zap.String("slug", slug), zap.Error(err))
		} else if found {
			return &cached, nil
		}
	}

	var item Item
	err := withChildren(s.db.WithContext(ctx)).
		Where("slug = ? AND published = ?", slug, true).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Content not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, publishedKey(slug), item, s.ttl); err != nil {
			s.log.Warn("content cache write failed", zap.String("slug", slug), zap.Error(err))
		}
	}
	return &item, nil
}

func (s *Store) BySlug(ctx context.Context, slug string) (*Item, error) {
	return s.first(ctx, "content.BySlug", "slug = ?", slug)
}

func (s *Store) ByID(ctx context.Context, id uint) (*Item, error) {
	return s.first(ctx, "content.ByID", "id = ?", id)
}

func (s *Store) first(ctx context.Context, op string, query string, args ...any) (*Item, error) {
	var item Item
	err := withChildren(s.db.WithContext(ctx)).Where(query, args...).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Content not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &item, nil
}

type Filter struct {
	Kind               Kind
	IncludeUnpublished bool
}

func (s *Store) List(ctx context.Context, f Filter) ([]Item, error) {
	q := s.db.WithContext(ctx).Model(&Item{})
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if !f.IncludeUnpublished {
		q = q.Where("published = ?", true)
	}

	var items []Item
	if err := q.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("content.List: %w", err)
	}
	return items, nil
}

// Create inserts item with its media and course structure. An empty slug is
// generated from the title.
func (s *Store) Create(ctx context.Context, item *Item) error {
	const op = "content.Create"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := item.Slug
		if base == "" {
			base = MakeSlug(item.Title)
		} else {
			base = MakeSlug(base)
		}
		slug, err := UniqueSlug(ctx, tx, base)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		item.Slug = slug

		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
}

// Update replaces the item's fields, media and course structure.
func (s *Store) Update(ctx context.Context, item *Item) error {
	const op = "content.Update"
	var oldSlug string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Item
		if err := tx.First(&existing, item.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Content not found")
			}
			return err
		}
		oldSlug = existing.Slug
		if item.Slug == "" {
			item.Slug = existing.Slug
		}
		item.CreatedAt = existing.CreatedAt
		item.Published = existing.Published
		item.PublishedAt = existing.PublishedAt

		var classIDs []uint
		if err := tx.Model(&CourseClass{}).Where("item_id = ?", item.ID).Pluck("id", &classIDs).Error; err != nil {
			return err
		}
		if len(classIDs) > 0 {
			if err := tx.Where("class_id IN ?", classIDs).Delete(&CourseComponent{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("item_id = ?", item.ID).Delete(&CourseClass{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", item.ID).Delete(&MediaRef{}).Error; err != nil {
			return err
		}

		for i := range item.Media {
			item.Media[i].ID = 0
		}
		for i := range item.Classes {
			item.Classes[i].ID = 0
			for j := range item.Classes[i].Components {
				item.Classes[i].Components[j].ID = 0
			}
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(item).Error
	})
	if err != nil {
		if apperr.KindOf(err) != "" {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, oldSlug, item.Slug)
	return nil
}

// SetPublished publishes or unpublishes an item.
func (s *Store) SetPublished(ctx context.Context, id uint, published bool, now time.Time) (*Item, error) {
	item, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"published": published}
	if published && item.PublishedAt == nil {
		updates["published_at"] = now
	}
	if err := s.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("content.SetPublished: %w", err)
	}

	s.invalidate(ctx, item.Slug)
	return s.ByID(ctx, id)
}

// ComponentItem returns the course item a component belongs to.
func (s *Store) ComponentItem(ctx context.Context, componentID uint) (uint, error) {
	var row struct{ ItemID uint }
	err := s.db.WithContext(ctx).
		Table("course_components").
		Select("course_classes.item_id AS item_id").
		Joins("JOIN course_classes ON course_classes.id = course_components.class_id").
		Where("course_components.id = ?", componentID).
		Scan(&row).Error
	if err != nil {
		return 0, fmt.Errorf("content.ComponentItem: %w", err)
	}
	if row.ItemID == 0 {
		return 0, apperr.NotFound("Component not found")
	}
	return row.ItemID, nil
}

func (s *Store) invalidate(ctx context.Context, slugs ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		if slug != "" {
			keys = append(keys, publishedKey(slug))
		}
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn("content cache invalidation failed", zap.Strings("slugs", slugs), zap.Error(err))
	}
}
