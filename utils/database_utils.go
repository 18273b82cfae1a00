// database_utils should be the canonical place to put shared DB utils.
// It should not include:
// 1. Any util that doesn't manipulate DB
// 2. Any util that contains business logic
package utils

import (
	"fmt"
	"os"
	"testing"

	"github.com/branchmux/branchmux/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GetDBConnection get a connection to the database specified by env
func GetDBConnection() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_PASS"),
		os.Getenv("DB_NAME"), os.Getenv("DB_PORT"))
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// DatabaseSetupAndMigration migrates every table the core owns. Soft-deletion
// of posts is modeled with an explicit flag instead of gorm.DeletedAt because
// the cascade engine needs full control over which subtree rows flip and when.
func DatabaseSetupAndMigration(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.UserFollow{},
		&model.Post{},
		&model.PostLike{},
		&model.PostShare{},
		&model.Message{},
		&model.Conversation{},
		&model.Notification{},
	)
}

// NewTestDB opens a throwaway sqlite database for a single test. Each test
// gets its own in-memory database, migrated and torn down via t.Cleanup, so
// tests stay hermetic and need no running postgres.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named in-memory database: connections within the test share state,
	// different tests never collide. Foreign keys are opt-in on sqlite; enforce
	// them so tests run under the same integrity rules as postgres.
	dsn := fmt.Sprintf("file:testdb_%s?mode=memory&cache=shared&_foreign_keys=1", RandomAlphabetString(8))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal("cannot open test DB: ", err)
	}
	if err := DatabaseSetupAndMigration(db); err != nil {
		t.Fatal("cannot migrate test DB: ", err)
	}

	t.Cleanup(func() {
		conn, _ := db.DB()
		conn.Close()
	})

	return db
}
