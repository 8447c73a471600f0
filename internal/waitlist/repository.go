package waitlist

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the persistence contract of the admission controller and the lottery.
//
// Join and leave are single server-side scripts, so the membership check and the
// write can never interleave with another caller on the same event.
type Store interface {
	// Lifecycle
	Create(ctx context.Context, entry *WaitlistEntry) error
	Get(ctx context.Context, eventID string) (*WaitlistEntry, error)
	Put(ctx context.Context, entry *WaitlistEntry) error
	Delete(ctx context.Context, eventID string) error
	SetStatus(ctx context.Context, eventID string, status ListStatus) error

	// Membership
	AtomicJoin(ctx context.Context, eventID, entrantID string) (JoinOutcome, error)
	AtomicLeave(ctx context.Context, eventID, entrantID string) (LeaveOutcome, error)
	IsMember(ctx context.Context, eventID, entrantID string) (bool, error)
	Size(ctx context.Context, eventID string) (int, error)

	// Invitation responses
	AtomicRespond(ctx context.Context, eventID, entrantID string, accept bool, respondedAt time.Time) (ResponseOutcome, error)

	// Draw locking
	BeginDraw(ctx context.Context, eventID, token string, ttl time.Duration) ([]string, error)
	CommitDraw(ctx context.Context, eventID, token string, winners []string, drawnAt time.Time) error
	AbortDraw(ctx context.Context, eventID, token string) error
}

// Every script receives the same six keys:
// KEYS[1] meta hash, KEYS[2] waiting zset, KEYS[3] selected zset, KEYS[4] draw lock,
// KEYS[5] accepted zset, KEYS[6] declined zset.
// A list whose status is drawing but whose lock has expired belongs to an
// abandoned draw and is treated as waiting again.

const luaWrite = `
-- ARGV[1] = mode (create | put)
-- ARGV[2] = event_id, ARGV[3] = capacity, ARGV[4] = status
-- ARGV[5] = created_at, ARGV[6] = last_draw_at or ''
-- ARGV[7], ARGV[8], ARGV[9] = number of waiting, selected and accepted ids
-- ARGV[10..N] = waiting, selected, accepted and declined ids in that order
if ARGV[1] == 'create' and redis.call('EXISTS', KEYS[1]) == 1 then
    return 'exists'
end
if redis.call('EXISTS', KEYS[4]) == 1 then
    return 'drawing'
end

redis.call('DEL', KEYS[1], KEYS[2], KEYS[3], KEYS[5], KEYS[6])
redis.call('HSET', KEYS[1],
    'event_id', ARGV[2],
    'capacity', ARGV[3],
    'status', ARGV[4],
    'created_at', ARGV[5])
if ARGV[6] ~= '' then
    redis.call('HSET', KEYS[1], 'last_draw_at', ARGV[6])
end

local nw, ns, na = tonumber(ARGV[7]), tonumber(ARGV[8]), tonumber(ARGV[9])
local base = 9
for i = 1, nw do
    redis.call('ZADD', KEYS[2], i, ARGV[base + i])
end
redis.call('HSET', KEYS[1], 'seq', nw)
base = base + nw

local drawn = ARGV[6]
if drawn == '' then drawn = '0' end
for i = 1, ns do
    redis.call('ZADD', KEYS[3], drawn, ARGV[base + i])
end
base = base + ns
for i = 1, na do
    redis.call('ZADD', KEYS[5], drawn, ARGV[base + i])
end
for i = base + na + 1, #ARGV do
    redis.call('ZADD', KEYS[6], drawn, ARGV[i])
end
return 'ok'
`

const luaJoin = `
-- ARGV[1] = entrant_id
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 'not_found'
end

local status = redis.call('HGET', KEYS[1], 'status')
if status == 'drawing' then
    if redis.call('EXISTS', KEYS[4]) == 1 then
        return 'drawing'
    end
    redis.call('HSET', KEYS[1], 'status', 'waiting')
    status = 'waiting'
end

if redis.call('ZSCORE', KEYS[2], ARGV[1]) then
    return 'already_member'
end
-- drawn entrants are not waiting but may not enter the pool again
if redis.call('ZSCORE', KEYS[3], ARGV[1]) or redis.call('ZSCORE', KEYS[5], ARGV[1])
    or redis.call('ZSCORE', KEYS[6], ARGV[1]) then
    return 'already_drawn'
end
if status == 'closed' then
    return 'closed'
end

local capacity = tonumber(redis.call('HGET', KEYS[1], 'capacity'))
if redis.call('ZCARD', KEYS[2]) >= capacity then
    return 'full'
end

local seq = redis.call('HINCRBY', KEYS[1], 'seq', 1)
redis.call('ZADD', KEYS[2], seq, ARGV[1])
return 'admitted'
`

const luaLeave = `
-- ARGV[1] = entrant_id
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 'not_found'
end

if redis.call('HGET', KEYS[1], 'status') == 'drawing' then
    if redis.call('EXISTS', KEYS[4]) == 1 then
        return 'drawing'
    end
    redis.call('HSET', KEYS[1], 'status', 'waiting')
end

if redis.call('ZREM', KEYS[2], ARGV[1]) == 1 then
    return 'removed'
end
return 'not_member'
`

const luaPeek = `
-- ARGV[1] = entrant_id, may be empty
-- returns {exists, waiting count, is member}
if redis.call('EXISTS', KEYS[1]) == 0 then
    return {0, 0, 0}
end
local member = 0
if ARGV[1] ~= '' and redis.call('ZSCORE', KEYS[2], ARGV[1]) then
    member = 1
end
return {1, redis.call('ZCARD', KEYS[2]), member}
`

const luaRespond = `
-- ARGV[1] = entrant_id, ARGV[2] = '1' to accept or '0' to decline
-- ARGV[3] = responded_at in milliseconds
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 'not_found'
end

if redis.call('HGET', KEYS[1], 'status') == 'drawing' then
    if redis.call('EXISTS', KEYS[4]) == 1 then
        return 'drawing'
    end
    redis.call('HSET', KEYS[1], 'status', 'waiting')
end

if redis.call('ZSCORE', KEYS[5], ARGV[1]) or redis.call('ZSCORE', KEYS[6], ARGV[1]) then
    return 'already_responded'
end
if redis.call('ZREM', KEYS[3], ARGV[1]) == 0 then
    return 'not_selected'
end

if ARGV[2] == '1' then
    redis.call('ZADD', KEYS[5], ARGV[3], ARGV[1])
    return 'accepted'
end
redis.call('ZADD', KEYS[6], ARGV[3], ARGV[1])
return 'declined'
`

const luaSetStatus = `
-- ARGV[1] = status
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 'not_found'
end
if redis.call('EXISTS', KEYS[4]) == 1 then
    return 'drawing'
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return 'ok'
`

const luaBeginDraw = `
-- ARGV[1] = lock token, ARGV[2] = lock ttl in milliseconds
if redis.call('EXISTS', KEYS[1]) == 0 then
    return {'not_found'}
end
if redis.call('HGET', KEYS[1], 'status') == 'closed' then
    return {'closed'}
end
if not redis.call('SET', KEYS[4], ARGV[1], 'NX', 'PX', ARGV[2]) then
    return {'drawing'}
end

redis.call('HSET', KEYS[1], 'status', 'drawing')
local members = redis.call('ZRANGE', KEYS[2], 0, -1)
table.insert(members, 1, 'ok')
return members
`

const luaCommitDraw = `
-- ARGV[1] = lock token, ARGV[2] = drawn_at in milliseconds, ARGV[3..N] = winners
if redis.call('GET', KEYS[4]) ~= ARGV[1] then
    return 'lock_lost'
end

redis.call('DEL', KEYS[3])
for i = 3, #ARGV do
    redis.call('ZREM', KEYS[2], ARGV[i])
    redis.call('ZADD', KEYS[3], ARGV[2], ARGV[i])
end
redis.call('HSET', KEYS[1], 'status', 'waiting', 'last_draw_at', ARGV[2], 'last_draw_token', ARGV[1])
redis.call('DEL', KEYS[4])
return 'ok'
`

const luaAbortDraw = `
-- ARGV[1] = lock token
local holder = redis.call('GET', KEYS[4])
if holder and holder ~= ARGV[1] then
    return 'lock_lost'
end
if holder then
    redis.call('DEL', KEYS[4])
end
if redis.call('HGET', KEYS[1], 'status') == 'drawing' then
    redis.call('HSET', KEYS[1], 'status', 'waiting')
end
return 'ok'
`

var (
	writeScript      = redis.NewScript(luaWrite)
	joinScript       = redis.NewScript(luaJoin)
	leaveScript      = redis.NewScript(luaLeave)
	peekScript       = redis.NewScript(luaPeek)
	respondScript    = redis.NewScript(luaRespond)
	setStatusScript  = redis.NewScript(luaSetStatus)
	beginDrawScript  = redis.NewScript(luaBeginDraw)
	commitDrawScript = redis.NewScript(luaCommitDraw)
	abortDrawScript  = redis.NewScript(luaAbortDraw)
)

// RedisStore keeps each waitlist as a meta hash plus one sorted set per group
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a new Redis backed waitlist store
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redis: redisClient,
	}
}

func keysFor(eventID string) []string {
	return []string{
		GetMetaKey(eventID),
		GetWaitingKey(eventID),
		GetSelectedKey(eventID),
		GetDrawLockKey(eventID),
		GetAcceptedKey(eventID),
		GetDeclinedKey(eventID),
	}
}

// Create stores a new waitlist and fails with ErrWaitlistExists if one is present
func (s *RedisStore) Create(ctx context.Context, entry *WaitlistEntry) error {
	return s.write(ctx, "create", entry)
}

// Put overwrites the whole waitlist. It is refused while a draw holds the list.
func (s *RedisStore) Put(ctx context.Context, entry *WaitlistEntry) error {
	return s.write(ctx, "put", entry)
}

func (s *RedisStore) write(ctx context.Context, mode string, entry *WaitlistEntry) error {
	lastDraw := ""
	if entry.LastDrawAt != nil {
		lastDraw = strconv.FormatInt(entry.LastDrawAt.UnixMilli(), 10)
	}

	args := make([]interface{}, 0, 9+len(entry.Waiting)+len(entry.Selected)+len(entry.Accepted)+len(entry.Declined))
	args = append(args,
		mode,
		entry.EventID,
		entry.Capacity,
		string(entry.Status),
		entry.CreatedAt.UnixMilli(),
		lastDraw,
		len(entry.Waiting),
		len(entry.Selected),
		len(entry.Accepted),
	)
	for _, group := range [][]string{entry.Waiting, entry.Selected, entry.Accepted, entry.Declined} {
		for _, id := range group {
			args = append(args, id)
		}
	}

	result, err := writeScript.Run(ctx, s.redis, keysFor(entry.EventID), args...).Text()
	if err != nil {
		return fmt.Errorf("failed to %s waitlist: %w", mode, err)
	}

	switch result {
	case "ok":
		return nil
	case "exists":
		return ErrWaitlistExists
	case "drawing":
		return ErrDrawInProgress
	default:
		return fmt.Errorf("unexpected write result %q", result)
	}
}

// Get loads the full waitlist in one transaction
func (s *RedisStore) Get(ctx context.Context, eventID string) (*WaitlistEntry, error) {
	var (
		meta     *redis.MapStringStringCmd
		waiting  *redis.StringSliceCmd
		selected *redis.StringSliceCmd
		accepted *redis.StringSliceCmd
		declined *redis.StringSliceCmd
		locked   *redis.IntCmd
	)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, GetMetaKey(eventID))
		waiting = pipe.ZRange(ctx, GetWaitingKey(eventID), 0, -1)
		selected = pipe.ZRange(ctx, GetSelectedKey(eventID), 0, -1)
		accepted = pipe.ZRange(ctx, GetAcceptedKey(eventID), 0, -1)
		declined = pipe.ZRange(ctx, GetDeclinedKey(eventID), 0, -1)
		locked = pipe.Exists(ctx, GetDrawLockKey(eventID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load waitlist: %w", err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return nil, ErrWaitlistNotFound
	}

	capacity, err := strconv.Atoi(fields["capacity"])
	if err != nil {
		return nil, fmt.Errorf("corrupt capacity for waitlist %s: %w", eventID, err)
	}

	status := ListStatus(fields["status"])
	if status == StatusDrawing && locked.Val() == 0 {
		status = StatusWaiting
	}

	entry := &WaitlistEntry{
		EventID:   eventID,
		Capacity:  capacity,
		Waiting:   waiting.Val(),
		Selected:  selected.Val(),
		Accepted:  accepted.Val(),
		Declined:  declined.Val(),
		Status:    status,
		CreatedAt: parseMillis(fields["created_at"]),

		LastDrawToken: fields["last_draw_token"],
	}
	if raw := fields["last_draw_at"]; raw != "" {
		drawnAt := parseMillis(raw)
		entry.LastDrawAt = &drawnAt
	}
	return entry, nil
}

// Delete removes the waitlist together with any draw lock on it
func (s *RedisStore) Delete(ctx context.Context, eventID string) error {
	keys := keysFor(eventID)

	var removed *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Exists(ctx, keys[0])
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete waitlist: %w", err)
	}
	if removed.Val() == 0 {
		return ErrWaitlistNotFound
	}
	return nil
}

// SetStatus changes the list status unless a draw currently holds it
func (s *RedisStore) SetStatus(ctx context.Context, eventID string, status ListStatus) error {
	result, err := setStatusScript.Run(ctx, s.redis, keysFor(eventID), string(status)).Text()
	if err != nil {
		return fmt.Errorf("failed to set waitlist status: %w", err)
	}

	switch result {
	case "ok":
		return nil
	case "not_found":
		return ErrWaitlistNotFound
	case "drawing":
		return ErrDrawInProgress
	default:
		return fmt.Errorf("unexpected status result %q", result)
	}
}

// AtomicJoin adds the entrant if absent and the list is under capacity
func (s *RedisStore) AtomicJoin(ctx context.Context, eventID, entrantID string) (JoinOutcome, error) {
	result, err := joinScript.Run(ctx, s.redis, keysFor(eventID), entrantID).Text()
	if err != nil {
		return "", fmt.Errorf("failed to join waitlist: %w", err)
	}

	switch result {
	case "admitted":
		return JoinAdmitted, nil
	case "already_member":
		return JoinAlreadyMember, nil
	case "already_drawn":
		return JoinAlreadyDrawn, nil
	case "full":
		return JoinFull, nil
	case "not_found":
		return JoinNotFound, nil
	case "drawing":
		return "", ErrDrawInProgress
	case "closed":
		return "", ErrWaitlistClosed
	default:
		return "", fmt.Errorf("unexpected join result %q", result)
	}
}

// AtomicLeave removes the entrant from the waiting set if present
func (s *RedisStore) AtomicLeave(ctx context.Context, eventID, entrantID string) (LeaveOutcome, error) {
	result, err := leaveScript.Run(ctx, s.redis, keysFor(eventID), entrantID).Text()
	if err != nil {
		return "", fmt.Errorf("failed to leave waitlist: %w", err)
	}

	switch result {
	case "removed":
		return LeaveRemoved, nil
	case "not_member":
		return LeaveNotMember, nil
	case "not_found":
		return LeaveNotFound, nil
	case "drawing":
		return "", ErrDrawInProgress
	default:
		return "", fmt.Errorf("unexpected leave result %q", result)
	}
}

// AtomicRespond moves a selected entrant into the accepted or declined group.
// Each entrant answers once per list.
func (s *RedisStore) AtomicRespond(ctx context.Context, eventID, entrantID string, accept bool, respondedAt time.Time) (ResponseOutcome, error) {
	flag := "0"
	if accept {
		flag = "1"
	}

	result, err := respondScript.Run(ctx, s.redis, keysFor(eventID), entrantID, flag, respondedAt.UnixMilli()).Text()
	if err != nil {
		return "", fmt.Errorf("failed to record response: %w", err)
	}

	switch result {
	case "accepted":
		return RespondAccepted, nil
	case "declined":
		return RespondDeclined, nil
	case "already_responded":
		return RespondAlreadyResponded, nil
	case "not_selected":
		return RespondNotSelected, nil
	case "not_found":
		return RespondNotFound, nil
	case "drawing":
		return "", ErrDrawInProgress
	default:
		return "", fmt.Errorf("unexpected respond result %q", result)
	}
}

// IsMember reports whether the entrant is currently waiting
func (s *RedisStore) IsMember(ctx context.Context, eventID, entrantID string) (bool, error) {
	exists, _, member, err := s.peek(ctx, eventID, entrantID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrWaitlistNotFound
	}
	return member, nil
}

// Size returns the number of waiting entrants
func (s *RedisStore) Size(ctx context.Context, eventID string) (int, error) {
	exists, size, _, err := s.peek(ctx, eventID, "")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrWaitlistNotFound
	}
	return size, nil
}

func (s *RedisStore) peek(ctx context.Context, eventID, entrantID string) (bool, int, bool, error) {
	values, err := peekScript.Run(ctx, s.redis, keysFor(eventID), entrantID).Int64Slice()
	if err != nil {
		return false, 0, false, fmt.Errorf("failed to read waitlist: %w", err)
	}
	if len(values) != 3 {
		return false, 0, false, fmt.Errorf("unexpected peek result %v", values)
	}
	return values[0] == 1, int(values[1]), values[2] == 1, nil
}

// BeginDraw takes the draw lock and returns the waiting snapshot in join order
func (s *RedisStore) BeginDraw(ctx context.Context, eventID, token string, ttl time.Duration) ([]string, error) {
	result, err := beginDrawScript.Run(ctx, s.redis, keysFor(eventID), token, ttl.Milliseconds()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to begin draw: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("empty begin draw result")
	}

	switch result[0] {
	case "ok":
		return result[1:], nil
	case "not_found":
		return nil, ErrWaitlistNotFound
	case "closed":
		return nil, ErrWaitlistClosed
	case "drawing":
		return nil, ErrDrawInProgress
	default:
		return nil, fmt.Errorf("unexpected begin draw result %q", result[0])
	}
}

// CommitDraw replaces the selected group with the winners, removes them from
// waiting and releases the lock. Winners of earlier draws who never answered
// leave the selected group here, even when winners is empty. It fails with
// ErrDrawLockLost when the token no longer owns the lock.
func (s *RedisStore) CommitDraw(ctx context.Context, eventID, token string, winners []string, drawnAt time.Time) error {
	args := make([]interface{}, 0, 2+len(winners))
	args = append(args, token, drawnAt.UnixMilli())
	for _, id := range winners {
		args = append(args, id)
	}

	result, err := commitDrawScript.Run(ctx, s.redis, keysFor(eventID), args...).Text()
	if err != nil {
		return fmt.Errorf("failed to commit draw: %w", err)
	}
	if result == "lock_lost" {
		return ErrDrawLockLost
	}
	return nil
}

// AbortDraw releases the lock held by token and restores the waiting status
func (s *RedisStore) AbortDraw(ctx context.Context, eventID, token string) error {
	result, err := abortDrawScript.Run(ctx, s.redis, keysFor(eventID), token).Text()
	if err != nil {
		return fmt.Errorf("failed to abort draw: %w", err)
	}
	if result == "lock_lost" {
		return ErrDrawLockLost
	}
	return nil
}

func parseMillis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
