package waitlist

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pixelevents/internal/shared/apperr"
)

func TestWaitlistEntryValidate(t *testing.T) {
	valid := WaitlistEntry{
		EventID:  "evt-1",
		Capacity: 2,
		Waiting:  []string{"a", "b"},
		Selected: []string{"c"},
		Accepted: []string{"d"},
		Declined: []string{"e"},
		Status:   StatusWaiting,
	}
	assert.NoError(t, valid.Validate())

	cases := map[string]func(e *WaitlistEntry){
		"missing event":      func(e *WaitlistEntry) { e.EventID = "" },
		"zero capacity":      func(e *WaitlistEntry) { e.Capacity = 0 },
		"unknown status":     func(e *WaitlistEntry) { e.Status = "open" },
		"duplicate waiting":  func(e *WaitlistEntry) { e.Waiting = []string{"a", "a"} },
		"over capacity":      func(e *WaitlistEntry) { e.Waiting = []string{"a", "b", "d"} },
		"duplicate selected": func(e *WaitlistEntry) { e.Selected = []string{"c", "c"} },
		"waiting and selected": func(e *WaitlistEntry) {
			e.Selected = []string{"a"}
		},
		"duplicate declined":    func(e *WaitlistEntry) { e.Declined = []string{"e", "e"} },
		"selected and accepted": func(e *WaitlistEntry) { e.Accepted = []string{"c"} },
		"waiting and declined":  func(e *WaitlistEntry) { e.Declined = []string{"b"} },
		"accepted and declined": func(e *WaitlistEntry) { e.Declined = []string{"d"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			entry := valid
			entry.Waiting = append([]string(nil), valid.Waiting...)
			entry.Selected = append([]string(nil), valid.Selected...)
			entry.Accepted = append([]string(nil), valid.Accepted...)
			entry.Declined = append([]string(nil), valid.Declined...)
			mutate(&entry)
			assert.ErrorIs(t, entry.Validate(), apperr.ErrInvalidArgument)
		})
	}
}

func TestWaitlistEntryMembership(t *testing.T) {
	entry := WaitlistEntry{Waiting: []string{"a"}, Selected: []string{"b"}}

	assert.Equal(t, 1, entry.Size())
	assert.True(t, entry.IsMember("a"))
	assert.False(t, entry.IsMember("b"))
	assert.True(t, entry.IsSelected("b"))
	assert.False(t, entry.IsSelected("a"))

	entry.Accepted = []string{"c"}
	entry.Declined = []string{"d"}
	assert.True(t, entry.HasAccepted("c"))
	assert.False(t, entry.HasAccepted("d"))
	assert.True(t, entry.HasDeclined("d"))
	assert.False(t, entry.IsMember("c"))
}

func TestKeysShareHashTag(t *testing.T) {
	for _, key := range keysFor("evt-9") {
		assert.Contains(t, key, "{evt-9}")
	}
}
