package database

import (
	"fmt"

	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/cart"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/pages"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/progress"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/domain/users"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		// core
		&plans.Plan{},
		&users.User{},
		&users.VerificationToken{},

		// catalog
		&content.Item{},
		&content.MediaRef{},
		&content.CourseClass{},
		&content.CourseComponent{},

		// commerce
		&cart.DiscountCode{},
		&cart.Cart{},
		&cart.CartItem{},
		&billing.Order{},
		&billing.OrderLine{},
		&registrations.Registration{},

		// learning + cms
		&progress.Completion{},
		&pages.Page{},
		&pages.Section{},
	}
}

// Open connects to Postgres.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database: DB_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	return db, nil
}

// Migrate auto-migrates all domain models.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("database: auto-migrate: %w", err)
	}
	log.Info("database migrated", zap.Int("models", len(Models())))
	return nil
}
