package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.All()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
