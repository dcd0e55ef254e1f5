package db

import (
	"fmt"

	"github.com/reviewrelay/reviewrelay/internal/models"

	"gorm.io/gorm"
)

// Migrate applies the schema for all persisted relations.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.UsageEvent{},
		&models.ReviewJob{},
		&models.ReviewArtifact{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
