package lottery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScheduleRepository persists scheduled draws
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *Schedule) error
	Get(ctx context.Context, eventID string) (*Schedule, error)
	Delete(ctx context.Context, eventID string) error
	// ClaimDue removes and returns up to limit schedules due at now.
	// A schedule is handed to exactly one caller.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)
}

const luaClaimDue = `
-- KEYS[1] = schedule index zset
-- ARGV[1] = now in milliseconds, ARGV[2] = limit, ARGV[3] = schedule key prefix
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local out = {}
for _, id in ipairs(due) do
    redis.call('ZREM', KEYS[1], id)
    local key = ARGV[3] .. id
    local fields = redis.call('HMGET', key, 'count', 'event_title', 'run_at', 'created_at')
    redis.call('DEL', key)
    if fields[1] then
        table.insert(out, id)
        table.insert(out, fields[1])
        table.insert(out, fields[2] or '')
        table.insert(out, fields[3] or '0')
        table.insert(out, fields[4] or '0')
    end
end
return out
`

var claimDueScript = redis.NewScript(luaClaimDue)

type scheduleRepository struct {
	redis *redis.Client
}

// NewScheduleRepository creates a Redis backed schedule repository
func NewScheduleRepository(redisClient *redis.Client) ScheduleRepository {
	return &scheduleRepository{redis: redisClient}
}

func (r *scheduleRepository) Save(ctx context.Context, schedule *Schedule) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := GetScheduleKey(schedule.EventID)
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"event_id", schedule.EventID,
			"count", schedule.Count,
			"event_title", schedule.EventTitle,
			"run_at", schedule.RunAt.UnixMilli(),
			"created_at", schedule.CreatedAt.UnixMilli(),
		)
		pipe.ZAdd(ctx, scheduleIndexKey, redis.Z{
			Score:  float64(schedule.RunAt.UnixMilli()),
			Member: schedule.EventID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save draw schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) Get(ctx context.Context, eventID string) (*Schedule, error) {
	fields, err := r.redis.HGetAll(ctx, GetScheduleKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load draw schedule: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrScheduleNotFound
	}
	return decodeSchedule(eventID, fields["count"], fields["event_title"], fields["run_at"], fields["created_at"])
}

func (r *scheduleRepository) Delete(ctx context.Context, eventID string) error {
	var removed *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, scheduleIndexKey, eventID)
		pipe.Del(ctx, GetScheduleKey(eventID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete draw schedule: %w", err)
	}
	if removed.Val() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *scheduleRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Schedule, error) {
	values, err := claimDueScript.Run(ctx, r.redis,
		[]string{scheduleIndexKey},
		now.UnixMilli(), limit, scheduleKeyPrefix,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to claim due draws: %w", err)
	}

	const width = 5
	schedules := make([]*Schedule, 0, len(values)/width)
	for i := 0; i+width <= len(values); i += width {
		schedule, err := decodeSchedule(values[i], values[i+1], values[i+2], values[i+3], values[i+4])
		if err != nil {
			return schedules, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, nil
}

func decodeSchedule(eventID, count, title, runAt, createdAt string) (*Schedule, error) {
	n, err := strconv.Atoi(count)
	if err != nil {
		return nil, fmt.Errorf("corrupt draw count for %s: %w", eventID, err)
	}
	return &Schedule{
		EventID:    eventID,
		Count:      n,
		EventTitle: title,
		RunAt:      millis(runAt),
		CreatedAt:  millis(createdAt),
	}, nil
}

func millis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
