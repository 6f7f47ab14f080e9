package database

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTest returns a migrated private in-memory sqlite database. The single
// connection keeps the in-memory database alive until Close.
func OpenTest() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic("failed to connect test database")
	}
	if err := singleConn(db); err != nil {
		panic("failed to configure test database")
	}
	if err := Migrate(db); err != nil {
		panic("failed to migrate test database")
	}
	return db
}
