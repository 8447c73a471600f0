package waitlist

// CreateWaitlistRequest opens a waitlist for an event
type CreateWaitlistRequest struct {
	EventID string `json:"event_id" validate:"required,max=128"`
	// Capacity of zero means the organizer set no limit
	Capacity int `json:"capacity" validate:"gte=0"`
}

// RespondRequest carries a selected entrant's answer
type RespondRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// WaitlistResponse is the organizer view of a waitlist
type WaitlistResponse struct {
	EventID    string     `json:"event_id"`
	Capacity   int        `json:"capacity"`
	Size       int        `json:"size"`
	Status     ListStatus `json:"status"`
	Waiting    []string   `json:"waiting"`
	Selected   []string   `json:"selected"`
	Accepted   []string   `json:"accepted"`
	Declined   []string   `json:"declined"`
	CreatedAt  string     `json:"created_at"`
	LastDrawAt *string    `json:"last_draw_at,omitempty"`
}

// MembershipResponse answers join, leave and membership queries
type MembershipResponse struct {
	EventID   string `json:"event_id"`
	EntrantID string `json:"entrant_id"`
	Outcome   string `json:"outcome,omitempty"`
	IsMember  bool   `json:"is_member"`
	Selected  bool   `json:"selected,omitempty"`
	// Response is the entrant's answer once given, ACCEPTED or DECLINED
	Response  string `json:"response,omitempty"`
}

// SizeResponse answers size queries
type SizeResponse struct {
	EventID  string `json:"event_id"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity,omitempty"`
}

// ToResponse converts an entry to its organizer view
func (we *WaitlistEntry) ToResponse() *WaitlistResponse {
	resp := &WaitlistResponse{
		EventID:   we.EventID,
		Capacity:  we.Capacity,
		Size:      we.Size(),
		Status:    we.Status,
		Waiting:   nonNil(we.Waiting),
		Selected:  nonNil(we.Selected),
		Accepted:  nonNil(we.Accepted),
		Declined:  nonNil(we.Declined),
		CreatedAt: we.CreatedAt.Format(timeLayout),
	}
	if we.LastDrawAt != nil {
		drawnAt := we.LastDrawAt.Format(timeLayout)
		resp.LastDrawAt = &drawnAt
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
