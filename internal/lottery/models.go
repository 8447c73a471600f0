package lottery

import (
	"time"

	"pixelevents/internal/notifications"
	"pixelevents/internal/shared/apperr"
	"pixelevents/internal/waitlist"
)

var (
	ErrInvalidCount     = apperr.New(apperr.ErrInvalidArgument, "draw count must not be negative")
	ErrScheduleNotFound = apperr.New(apperr.ErrNotFound, "no draw scheduled")
	ErrAlreadyDrawing   = waitlist.ErrDrawInProgress
	ErrWaitlistNotFound = waitlist.ErrWaitlistNotFound
)

// Schedule is a draw an organizer asked to run at a later time
type Schedule struct {
	EventID    string    `json:"event_id"`
	Count      int       `json:"count"`
	EventTitle string    `json:"event_title"`
	RunAt      time.Time `json:"run_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// DrawRequest runs a draw now
type DrawRequest struct {
	Count      int    `json:"count"`
	EventTitle string `json:"event_title" validate:"required,max=200"`
}

// ScheduleDrawRequest registers a draw to run at RunAt
type ScheduleDrawRequest struct {
	Count      int       `json:"count" validate:"gte=0"`
	EventTitle string    `json:"event_title" validate:"required,max=200"`
	RunAt      time.Time `json:"run_at" validate:"required"`
}

// DrawResponse is a committed draw together with its notification report
type DrawResponse struct {
	Result *waitlist.DrawResult          `json:"result"`
	Report *notifications.DispatchReport `json:"report"`
}

// Redis Key Helpers

const scheduleIndexKey = "lottery:schedules"

// GetScheduleKey returns the Redis key holding one scheduled draw
func GetScheduleKey(eventID string) string {
	return scheduleKeyPrefix + eventID
}

const scheduleKeyPrefix = "lottery:schedule:"
