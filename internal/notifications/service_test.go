package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelevents/internal/shared/apperr"
	"pixelevents/internal/waitlist"
	"pixelevents/pkg/cache"
)

type testEnv struct {
	service   Service
	repo      Repository
	waitlists waitlist.Service
	mr        *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	waitlists := waitlist.NewService(waitlist.NewRedisStore(client), nil, &waitlist.ServiceConfig{
		StoreTimeout:    time.Second,
		DrawLockTTL:     time.Minute,
		DefaultCapacity: waitlist.DefaultCapacity,
	})

	repo := newTestRepository(t)
	cacheService := cache.NewService(client)
	dispatcher := NewDispatcher(repo, nil, cacheService, nil, &DispatcherConfig{Concurrency: 4, StoreTimeout: time.Second})

	return &testEnv{
		service:   NewService(repo, dispatcher, waitlists, cacheService, nil, &ServiceConfig{StoreTimeout: time.Second, InboxTTL: time.Minute}),
		repo:      repo,
		waitlists: waitlists,
		mr:        mr,
	}
}

func (e *testEnv) seedList(t *testing.T, eventID string, entrants ...string) {
	t.Helper()

	ctx := context.Background()
	_, err := e.waitlists.CreateWaitlist(ctx, &waitlist.CreateWaitlistRequest{EventID: eventID, Capacity: 100})
	require.NoError(t, err)
	for _, id := range entrants {
		outcome, err := e.waitlists.Join(ctx, eventID, id)
		require.NoError(t, err)
		require.Equal(t, waitlist.JoinAdmitted, outcome)
	}
}

func TestBroadcastToWaitingGroup(t *testing.T) {
	env := newTestEnv(t)
	env.seedList(t, "evt-1", "alice", "bob")
	ctx := context.Background()

	report, err := env.service.Broadcast(ctx, "evt-1", &BroadcastRequest{
		Group:      GroupWaiting,
		EventTitle: "Summer Swim",
		Message:    "Pool opens at 9",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Delivered)

	inbox, err := env.service.ListInbox(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Pool opens at 9", inbox[0].Message)
}

func TestBroadcastToSelectedGroup(t *testing.T) {
	env := newTestEnv(t)
	env.seedList(t, "evt-1", "alice", "bob")
	ctx := context.Background()

	lease, err := env.waitlists.BeginDraw(ctx, "evt-1")
	require.NoError(t, err)
	require.NoError(t, env.waitlists.CommitDraw(ctx, lease, []string{"bob"}, time.Now()))

	report, err := env.service.Broadcast(ctx, "evt-1", &BroadcastRequest{
		Group:      GroupSelected,
		EventTitle: "Summer Swim",
		Message:    "Confirm your spot",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)

	inbox, err := env.service.ListInbox(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestBroadcastToRespondedGroups(t *testing.T) {
	env := newTestEnv(t)
	env.seedList(t, "evt-1", "alice", "bob", "carol")
	ctx := context.Background()

	lease, err := env.waitlists.BeginDraw(ctx, "evt-1")
	require.NoError(t, err)
	require.NoError(t, env.waitlists.CommitDraw(ctx, lease, []string{"alice", "bob"}, time.Now()))
	_, err = env.waitlists.Respond(ctx, "evt-1", "alice", true)
	require.NoError(t, err)
	_, err = env.waitlists.Respond(ctx, "evt-1", "bob", false)
	require.NoError(t, err)

	report, err := env.service.Broadcast(ctx, "evt-1", &BroadcastRequest{
		Group:      GroupCancelled,
		EventTitle: "Summer Swim",
		Message:    "Sorry to miss you",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)

	report, err = env.service.Broadcast(ctx, "evt-1", &BroadcastRequest{
		Group:      GroupAccepted,
		EventTitle: "Summer Swim",
		Message:    "See you there",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)

	inbox, err := env.service.ListInbox(ctx, "bob", nil)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Sorry to miss you", inbox[0].Message)

	inbox, err = env.service.ListInbox(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "See you there", inbox[0].Message)

	inbox, err = env.service.ListInbox(ctx, "carol", nil)
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestBroadcastValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Broadcast(ctx, "evt-1", &BroadcastRequest{Group: "everyone", EventTitle: "x", Message: "y"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = env.service.Broadcast(ctx, "missing", &BroadcastRequest{Group: GroupWaiting, EventTitle: "x", Message: "y"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInboxCacheInvalidatedOnWrite(t *testing.T) {
	env := newTestEnv(t)
	env.seedList(t, "evt-1", "alice")
	ctx := context.Background()

	inbox, err := env.service.ListInbox(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	// the empty page is now cached, a dispatch must evict it
	_, err = env.service.Broadcast(ctx, "evt-1", &BroadcastRequest{Group: GroupWaiting, EventTitle: "x", Message: "first"})
	require.NoError(t, err)

	inbox, err = env.service.ListInbox(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.False(t, inbox[0].IsRead)

	require.NoError(t, env.service.MarkRead(ctx, "alice", inbox[0].ID))

	inbox, err = env.service.ListInbox(ctx, "alice", nil)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.True(t, inbox[0].IsRead)
}

func TestInboxSurvivesCacheOutage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	n := buildNotification("alice", time.Now())
	require.NoError(t, env.repo.SaveToInbox(ctx, n))

	env.mr.Close()

	inbox, err := env.service.ListInbox(ctx, "alice", &ListQuery{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestMarkReadUnknown(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.MarkRead(context.Background(), "alice", uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAuditLogAndWasIssued(t *testing.T) {
	env := newTestEnv(t)
	env.seedList(t, "evt-1", "alice", "bob")
	ctx := context.Background()

	_, err := env.service.Broadcast(ctx, "evt-1", &BroadcastRequest{Group: GroupWaiting, EventTitle: "x", Message: "hello"})
	require.NoError(t, err)

	entries, err := env.service.ListAuditLog(ctx, "evt-1", nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	issued, err := env.service.WasIssued(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.True(t, issued)

	issued, err = env.service.WasIssued(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, issued)

	_, err = env.service.ListAuditLog(ctx, "", &ListQuery{Limit: 500})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
