package db

import (
	"fmt"
	"time"

	"github.com/lojamoda/storefront-auth/config"
	appLogger "github.com/lojamoda/storefront-auth/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

const (
	maxIdleConns    = 10
	maxOpenConns    = 50
	connMaxLifetime = 30 * time.Minute
)

// Initialize initializes the database connection
func Initialize(cfg *config.DatabaseConfig) error {
	dsn := cfg.DSN()

	appLogger.Info("Connecting to database", map[string]interface{}{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.DBName,
		"user":     cfg.User,
	})

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Use silent mode, we'll use our own logger
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	appLogger.Info("Database connection established successfully", map[string]interface{}{
		"max_idle_conns":    maxIdleConns,
		"max_open_conns":    maxOpenConns,
		"conn_max_lifetime": connMaxLifetime.String(),
	})
	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
