package waitlist

import (
	"fmt"
	"time"
)

// ListStatus is the lifecycle state of an event's waitlist
type ListStatus string

const (
	StatusWaiting ListStatus = "waiting"
	StatusDrawing ListStatus = "drawing"
	StatusClosed  ListStatus = "closed"
)

// IsValid checks if the list status is one of the known states
func (s ListStatus) IsValid() bool {
	switch s {
	case StatusWaiting, StatusDrawing, StatusClosed:
		return true
	default:
		return false
	}
}

// WaitlistEntry is the waitlist of a single event.
//
// Waiting holds entrants still eligible for the next draw, Selected holds the
// winners of the most recent draw who have not answered yet. Accepted and
// Declined keep every answer given across draws. The four sets are disjoint
// and the number of waiting entrants never exceeds Capacity.
type WaitlistEntry struct {
	EventID    string     `json:"event_id"`
	Capacity   int        `json:"capacity"`
	Waiting    []string   `json:"waiting"`
	Selected   []string   `json:"selected"`
	Accepted   []string   `json:"accepted"`
	Declined   []string   `json:"declined"`
	Status     ListStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	LastDrawAt *time.Time `json:"last_draw_at,omitempty"`

	// LastDrawToken is the lease token of the last committed draw
	LastDrawToken string `json:"-"`
}

// Size returns the number of waiting entrants
func (we *WaitlistEntry) Size() int {
	return len(we.Waiting)
}

// IsMember reports whether the entrant is waiting
func (we *WaitlistEntry) IsMember(entrantID string) bool {
	return contains(we.Waiting, entrantID)
}

// IsSelected reports whether the entrant won the most recent draw
func (we *WaitlistEntry) IsSelected(entrantID string) bool {
	return contains(we.Selected, entrantID)
}

// HasAccepted reports whether the entrant accepted an invitation
func (we *WaitlistEntry) HasAccepted(entrantID string) bool {
	return contains(we.Accepted, entrantID)
}

func (we *WaitlistEntry) HasDeclined(entrantID string) bool {
	return contains(we.Declined, entrantID)
}

// Validate checks the structural invariants of the entry
func (we *WaitlistEntry) Validate() error {
	if we.EventID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}
	if we.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if !we.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, we.Status)
	}

	waiting := make(map[string]struct{}, len(we.Waiting))
	for _, id := range we.Waiting {
		if _, dup := waiting[id]; dup {
			return fmt.Errorf("%w: entrant %s listed twice", ErrInvalidArgument, id)
		}
		waiting[id] = struct{}{}
	}
	if len(waiting) > we.Capacity {
		return fmt.Errorf("%w: %d waiting exceeds capacity %d", ErrInvalidArgument, len(waiting), we.Capacity)
	}

	seen := make(map[string]string, len(we.Selected)+len(we.Accepted)+len(we.Declined))
	for id := range waiting {
		seen[id] = "waiting"
	}
	groups := []struct {
		name string
		ids  []string
	}{
		{"selected", we.Selected},
		{"accepted", we.Accepted},
		{"declined", we.Declined},
	}
	for _, group := range groups {
		for _, id := range group.ids {
			if prev, dup := seen[id]; dup {
				if prev == group.name {
					return fmt.Errorf("%w: entrant %s %s twice", ErrInvalidArgument, id, group.name)
				}
				return fmt.Errorf("%w: entrant %s is both %s and %s", ErrInvalidArgument, id, prev, group.name)
			}
			seen[id] = group.name
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// JoinOutcome is the expected result of a join attempt
type JoinOutcome string

const (
	JoinAdmitted      JoinOutcome = "ADMITTED"
	JoinAlreadyMember JoinOutcome = "ALREADY_MEMBER"
	// JoinAlreadyDrawn is returned to entrants a draw already moved out of the pool
	JoinAlreadyDrawn  JoinOutcome = "ALREADY_DRAWN"
	JoinFull          JoinOutcome = "FULL"
	JoinNotFound      JoinOutcome = "NOT_FOUND"
)

// LeaveOutcome is the expected result of a leave attempt
type LeaveOutcome string

const (
	LeaveRemoved   LeaveOutcome = "REMOVED"
	LeaveNotMember LeaveOutcome = "NOT_MEMBER"
	LeaveNotFound  LeaveOutcome = "NOT_FOUND"
)

// ResponseOutcome is the expected result of answering an invitation
type ResponseOutcome string

const (
	RespondAccepted         ResponseOutcome = "ACCEPTED"
	RespondDeclined         ResponseOutcome = "DECLINED"
	RespondNotSelected      ResponseOutcome = "NOT_SELECTED"
	RespondAlreadyResponded ResponseOutcome = "ALREADY_RESPONDED"
	RespondNotFound         ResponseOutcome = "NOT_FOUND"
)

// DrawResult is the partition of a waiting snapshot produced by one draw
type DrawResult struct {
	EventID string    `json:"event_id"`
	Winners []string  `json:"winners"`
	Losers  []string  `json:"losers"`
	DrawnAt time.Time `json:"drawn_at"`
}

// DrawLease is held by the single draw allowed to run on a list
type DrawLease struct {
	EventID string
	Token   string
	// Members is the waiting snapshot taken when the lease was granted
	Members []string
}

// Redis Key Helpers
//
// All keys of one event share the {eventID} hash tag so scripts stay on one slot.

// GetMetaKey returns the Redis key for a waitlist's metadata hash
func GetMetaKey(eventID string) string {
	return "waitlist:{" + eventID + "}:meta"
}

// GetWaitingKey returns the Redis key for the waiting entrants
func GetWaitingKey(eventID string) string {
	return "waitlist:{" + eventID + "}:waiting"
}

// GetSelectedKey returns the Redis key for the last draw's winners
func GetSelectedKey(eventID string) string {
	return "waitlist:{" + eventID + "}:selected"
}

// GetAcceptedKey returns the Redis key for entrants who accepted an invitation
func GetAcceptedKey(eventID string) string {
	return "waitlist:{" + eventID + "}:accepted"
}

// GetDeclinedKey returns the Redis key for entrants who declined an invitation
func GetDeclinedKey(eventID string) string {
	return "waitlist:{" + eventID + "}:declined"
}

// GetDrawLockKey returns the Redis key for the draw mutex
func GetDrawLockKey(eventID string) string {
	return "waitlist:{" + eventID + "}:draw_lock"
}

// Configuration Constants

const (
	// DefaultCapacity applies when an organizer creates a list without a limit
	DefaultCapacity = 1000000

	// DefaultDrawLockTTL is how long a draw may hold a list before it is treated as abandoned
	DefaultDrawLockTTL = 30 * time.Second

	// DefaultStoreTimeout bounds every store round trip made for a caller
	DefaultStoreTimeout = 5 * time.Second
)
