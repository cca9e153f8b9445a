package db

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	testDBCounter  atomic.Int64
	unsafeDSNChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// SetupTestDB creates a migrated in-memory SQLite database that is closed
// when the test finishes. Each call gets its own database.
func SetupTestDB(t testing.TB) (*gorm.DB, error) {
	name := unsafeDSNChars.ReplaceAllString(t.Name(), "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testDBCounter.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get test database instance: %w", err)
	}
	// A single connection keeps the in-memory database alive and serializes writes.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})

	if err := MigrateDB(conn); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	return conn, nil
}
