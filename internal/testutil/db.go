package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/localnerve/meddb/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var memSeq atomic.Int64

// OpenDB opens a migrated, seeded in-memory SQLite database private to the test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	// Shared cache keeps a single in-memory database across pooled connections.
	dsn := fmt.Sprintf("file:meddb_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", memSeq.Add(1))
	db, err := gorm.Open(puresqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get test database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	if err := database.Seed(db); err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return db
}
