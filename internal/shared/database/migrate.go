package database

import (
	"gorm.io/gorm"

	"pixelevents/internal/notifications"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&notifications.Notification{},
		&notifications.NotificationLog{},
	)
}
