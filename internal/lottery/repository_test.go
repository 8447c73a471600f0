package lottery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduleRepository(t *testing.T) ScheduleRepository {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewScheduleRepository(client)
}

func TestScheduleRepositoryRoundTrip(t *testing.T) {
	repo := newTestScheduleRepository(t)
	ctx := context.Background()

	runAt := time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &Schedule{EventID: "evt-1", Count: 3, EventTitle: "Gala", RunAt: runAt, CreatedAt: runAt.Add(-time.Hour)}))

	got, err := repo.Get(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, "Gala", got.EventTitle)
	assert.True(t, runAt.Equal(got.RunAt))

	_, err = repo.Get(ctx, "evt-2")
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	require.NoError(t, repo.Delete(ctx, "evt-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "evt-1"), ErrScheduleNotFound)
}

func TestClaimDueHonorsTimeAndLimit(t *testing.T) {
	repo := newTestScheduleRepository(t)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, &Schedule{
			EventID:    fmt.Sprintf("evt-%d", i),
			Count:      i,
			EventTitle: "t",
			RunAt:      now.Add(time.Duration(i-3) * time.Minute),
		}))
	}

	// evt-0..evt-3 are due, oldest first
	claimed, err := repo.ClaimDue(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "evt-0", claimed[0].EventID)
	assert.Equal(t, "evt-1", claimed[1].EventID)
	assert.Equal(t, 1, claimed[1].Count)

	claimed, err = repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	claimed, err = repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	_, err = repo.Get(ctx, "evt-4")
	assert.NoError(t, err)
}

func TestClaimDueIsExclusive(t *testing.T) {
	repo := newTestScheduleRepository(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 20; i++ {
		require.NoError(t, repo.Save(ctx, &Schedule{EventID: fmt.Sprintf("evt-%d", i), EventTitle: "t", RunAt: now.Add(-time.Second)}))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seen  = map[string]int{}
		total int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimDue(ctx, now, 5)
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			for _, s := range claimed {
				seen[s.EventID]++
				total++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "%s claimed more than once", id)
	}
}
