package db

import (
	"gorm.io/gorm"

	"crmsync/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return Migrate(db.Gorm)
}

// Migrate creates the mirror, checkpoint and settings tables. Mirrored
// entities are migrated parent-first so FK columns always have a target.
func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	return gdb.AutoMigrate(
		&models.Origin{},
		&models.Stage{},
		&models.Contact{},
		&models.Deal{},
		&models.SyncJob{},
		&models.SystemSetting{},
	)
}
