package db

import (
	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"gorm.io/gorm"
)

// Models lists every table owned by this service.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.TwoFactorCode{},
		&model.TwoFactorRateLimit{},
	}
}

// Migrate runs database migrations
func Migrate() error {
	return MigrateDB(DB)
}

// MigrateDB runs AutoMigrate against the given connection.
func MigrateDB(conn *gorm.DB) error {
	logger.Info("Running database migrations...")

	models := Models()
	if err := conn.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}
