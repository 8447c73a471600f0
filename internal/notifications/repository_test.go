package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pixelevents/internal/shared/apperr"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every connection to :memory: is its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Notification{}, &NotificationLog{}))
	return db
}

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	return NewRepository(newTestDB(t))
}

func buildNotification(recipient string, at time.Time) *Notification {
	return NewNotificationBuilder().
		WithType(NotificationTypeLotteryWin).
		WithRecipient(recipient).
		WithEvent("evt-1").
		WithContent(WinTitle, WinMessage("Summer Swim")).
		WithCreatedAt(at).
		Build()
}

func TestRepositorySaveIsUpsert(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	n := buildNotification("alice", time.Now())
	require.NoError(t, repo.SaveToInbox(ctx, n))
	require.NoError(t, repo.SaveToAuditLog(ctx, n.ToLog()))

	// replaying the same id overwrites instead of duplicating
	n.Message = "updated"
	require.NoError(t, repo.SaveToInbox(ctx, n))
	require.NoError(t, repo.SaveToAuditLog(ctx, n.ToLog()))

	inbox, err := repo.ListInbox(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "updated", inbox[0].Message)

	logs, err := repo.ListAuditLog(ctx, "evt-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, n.ID, logs[0].ID)
}

func TestRepositoryExists(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	n := buildNotification("alice", time.Now())
	exists, err := repo.Exists(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.SaveToAuditLog(ctx, n.ToLog()))

	exists, err = repo.Exists(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRepositoryListInboxNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		n := buildNotification("alice", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.SaveToInbox(ctx, n))
		ids = append(ids, n.ID)
	}
	require.NoError(t, repo.SaveToInbox(ctx, buildNotification("bob", base)))

	inbox, err := repo.ListInbox(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 3)
	assert.Equal(t, ids[2], inbox[0].ID)
	assert.Equal(t, ids[0], inbox[2].ID)

	page, err := repo.ListInbox(ctx, "alice", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

func TestRepositoryMarkRead(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	n := buildNotification("alice", time.Now())
	require.NoError(t, repo.SaveToInbox(ctx, n))

	err := repo.MarkRead(ctx, "bob", n.ID, time.Now())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, repo.MarkRead(ctx, "alice", n.ID, time.Now()))

	inbox, err := repo.ListInbox(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.True(t, inbox[0].IsRead)
	assert.NotNil(t, inbox[0].ReadAt)
}

func TestRepositoryMarkDeliveredKeepsFirstStamp(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	n := buildNotification("alice", time.Now())
	require.NoError(t, repo.SaveToInbox(ctx, n))

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkDelivered(ctx, "alice", n.ID, first))
	require.NoError(t, repo.MarkDelivered(ctx, "alice", n.ID, first.Add(time.Hour)))

	inbox, err := repo.ListInbox(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.NotNil(t, inbox[0].DeliveredAt)
	assert.True(t, first.Equal(*inbox[0].DeliveredAt))
}

func TestRepositoryListAuditLogFilter(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	a := buildNotification("alice", time.Now())
	b := buildNotification("bob", time.Now())
	b.EventID = "evt-2"
	require.NoError(t, repo.SaveToAuditLog(ctx, a.ToLog()))
	require.NoError(t, repo.SaveToAuditLog(ctx, b.ToLog()))

	all, err := repo.ListAuditLog(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := repo.ListAuditLog(ctx, "evt-2", 10, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "bob", filtered[0].RecipientID)
}
