package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeLotteryWin  NotificationType = "LOTTERY_WIN"
	NotificationTypeLotteryLoss NotificationType = "LOTTERY_LOSS"
	NotificationTypeGeneral     NotificationType = "GENERAL"
)

// IsValid checks if the notification type is known
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeLotteryWin, NotificationTypeLotteryLoss, NotificationTypeGeneral:
		return true
	default:
		return false
	}
}

// Notification is the recipient's personal copy of a notification
type Notification struct {
	RecipientID string           `json:"recipient_id" gorm:"type:varchar(128);primaryKey"`
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	Type        NotificationType `json:"type" gorm:"type:varchar(20);not null;index"`
	EventID     string           `json:"event_id" gorm:"type:varchar(128);not null;index"`
	Title       string           `json:"title" gorm:"type:varchar(200);not null"`
	Message     string           `json:"message" gorm:"type:text;not null"`
	IsRead      bool             `json:"is_read" gorm:"not null;default:false"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at" gorm:"not null;index"`
}

func (Notification) TableName() string {
	return "notifications"
}

// NotificationLog is the global audit copy, the source of truth for whether a
// notification id was ever issued
type NotificationLog struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	RecipientID string           `json:"recipient_id" gorm:"type:varchar(128);not null;index"`
	Type        NotificationType `json:"type" gorm:"type:varchar(20);not null"`
	EventID     string           `json:"event_id" gorm:"type:varchar(128);not null;index"`
	Title       string           `json:"title" gorm:"type:varchar(200);not null"`
	Message     string           `json:"message" gorm:"type:text;not null"`
	CreatedAt   time.Time        `json:"created_at" gorm:"not null;index"`
}

func (NotificationLog) TableName() string {
	return "notification_logs"
}

// ToLog returns the audit copy of n
func (n *Notification) ToLog() *NotificationLog {
	return &NotificationLog{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		EventID:     n.EventID,
		Title:       n.Title,
		Message:     n.Message,
		CreatedAt:   n.CreatedAt,
	}
}

type NotificationBuilder struct {
	notification *Notification
}

// NewNotificationBuilder starts a notification with a fresh id
func NewNotificationBuilder() *NotificationBuilder {
	return &NotificationBuilder{
		notification: &Notification{
			ID:        uuid.New(),
			Type:      NotificationTypeGeneral,
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		},
	}
}

func (nb *NotificationBuilder) WithType(notType NotificationType) *NotificationBuilder {
	nb.notification.Type = notType
	return nb
}

func (nb *NotificationBuilder) WithRecipient(recipientID string) *NotificationBuilder {
	nb.notification.RecipientID = recipientID
	return nb
}

func (nb *NotificationBuilder) WithEvent(eventID string) *NotificationBuilder {
	nb.notification.EventID = eventID
	return nb
}

func (nb *NotificationBuilder) WithContent(title, message string) *NotificationBuilder {
	nb.notification.Title = title
	nb.notification.Message = message
	return nb
}

func (nb *NotificationBuilder) WithCreatedAt(at time.Time) *NotificationBuilder {
	nb.notification.CreatedAt = at.UTC().Truncate(time.Millisecond)
	return nb
}

func (nb *NotificationBuilder) Build() *Notification {
	return nb.notification
}

// Lottery texts

const (
	WinTitle  = "Congratulations!"
	LossTitle = "Lottery Results"
)

// WinMessage is the body of a LOTTERY_WIN notification
func WinMessage(eventTitle string) string {
	return fmt.Sprintf("You won the lottery for %s", eventTitle)
}

// LossMessage is the body of a LOTTERY_LOSS notification
func LossMessage(eventTitle string) string {
	return fmt.Sprintf("You were not selected for %s", eventTitle)
}

// PushMessage is the payload published to the push channel
type PushMessage struct {
	ID          uuid.UUID        `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	EventID     string           `json:"event_id"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ToPushMessage returns the push payload of n
func (n *Notification) ToPushMessage() *PushMessage {
	return &PushMessage{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		EventID:     n.EventID,
		Title:       n.Title,
		Message:     n.Message,
		CreatedAt:   n.CreatedAt,
	}
}

// GetPartitionKey keeps one recipient's messages on one partition
func (pm *PushMessage) GetPartitionKey() string {
	return pm.RecipientID
}

func (pm *PushMessage) ToJSON() ([]byte, error) {
	return json.Marshal(pm)
}

// DispatchReport summarizes one fan-out. Failed lists recipients whose inbox or
// audit write did not succeed.
type DispatchReport struct {
	Delivered int      `json:"delivered"`
	Failed    []string `json:"failed"`
}

// Group selects which entrants of a waitlist a broadcast reaches
type Group string

const (
	GroupWaiting   Group = "waiting"
	GroupSelected  Group = "selected"
	GroupAccepted  Group = "accepted"
	// GroupCancelled reaches winners who declined their invitation
	GroupCancelled Group = "cancelled"
)

// BroadcastRequest sends a GENERAL notification to one group of a waitlist
type BroadcastRequest struct {
	Group      Group  `json:"group" validate:"required,oneof=waiting selected accepted cancelled"`
	EventTitle string `json:"event_title" validate:"required,max=200"`
	Message    string `json:"message" validate:"required,max=2000"`
}

// ListQuery pages through notifications
type ListQuery struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

// Normalize fills in the default page size
func (q *ListQuery) Normalize() {
	if q.Limit == 0 {
		q.Limit = 20
	}
}
