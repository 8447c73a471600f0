package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pixelevents/internal/shared/apperr"
)

var ErrNotificationNotFound = apperr.New(apperr.ErrNotFound, "notification not found")

// Repository stores the inbox copies and the audit log
type Repository interface {
	// Writes are upserts keyed by notification id, so replaying them is harmless
	SaveToInbox(ctx context.Context, notification *Notification) error
	SaveToAuditLog(ctx context.Context, entry *NotificationLog) error

	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ListInbox(ctx context.Context, recipientID string, limit, offset int) ([]Notification, error)
	MarkRead(ctx context.Context, recipientID string, id uuid.UUID, at time.Time) error
	MarkDelivered(ctx context.Context, recipientID string, id uuid.UUID, at time.Time) error
	ListAuditLog(ctx context.Context, eventID string, limit, offset int) ([]NotificationLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new notification repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveToInbox(ctx context.Context, notification *Notification) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(notification).Error
	if err != nil {
		return fmt.Errorf("failed to save inbox notification: %w", err)
	}
	return nil
}

func (r *repository) SaveToAuditLog(ctx context.Context, entry *NotificationLog) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to save audit log entry: %w", err)
	}
	return nil
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&NotificationLog{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	return count > 0, nil
}

func (r *repository) ListInbox(ctx context.Context, recipientID string, limit, offset int) ([]Notification, error) {
	var notifications []Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	return notifications, nil
}

func (r *repository) MarkRead(ctx context.Context, recipientID string, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND id = ?", recipientID, id).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkDelivered stamps the first delivery time only
func (r *repository) MarkDelivered(ctx context.Context, recipientID string, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND id = ? AND delivered_at IS NULL", recipientID, id).
		Update("delivered_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return nil
}

func (r *repository) ListAuditLog(ctx context.Context, eventID string, limit, offset int) ([]NotificationLog, error) {
	query := r.db.WithContext(ctx).Model(&NotificationLog{})
	if eventID != "" {
		query = query.Where("event_id = ?", eventID)
	}

	var entries []NotificationLog
	err := query.
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	return entries, nil
}
