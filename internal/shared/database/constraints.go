package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds the indexes behind the inbox and audit log listings
func MigrateConstraints(db *gorm.DB) error {
	statements := []string{
		// inbox pages are read newest first per recipient
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created
		ON notifications (recipient_id, created_at DESC)`,

		// receipts look up undelivered copies
		`CREATE INDEX IF NOT EXISTS idx_notifications_undelivered
		ON notifications (recipient_id, id) WHERE delivered_at IS NULL`,

		`CREATE INDEX IF NOT EXISTS idx_notification_logs_event_created
		ON notification_logs (event_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
