package ratelimit

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RateLimitType string

const (
	RateLimitTypeDefault   RateLimitType = "default"
	RateLimitTypeAdmission RateLimitType = "admission"
	RateLimitTypeOrganizer RateLimitType = "organizer"
	RateLimitTypeInbox     RateLimitType = "inbox"
	RateLimitTypeHealth    RateLimitType = "health"
)

// Config holds the per-type request budgets for one window
type Config struct {
	Enabled           bool          `json:"enabled"`
	WindowDuration    time.Duration `json:"window_duration"`
	DefaultRequests   int           `json:"default_requests"`
	AdmissionRequests int           `json:"admission_requests"`
	OrganizerRequests int           `json:"organizer_requests"`
	InboxRequests     int           `json:"inbox_requests"`
	HealthRequests    int           `json:"health_requests"`
	WhitelistedIPs    []string      `json:"whitelisted_ips"`
}

// Subject is who a budget is charged to. Entrant budgets follow the entrant
// across addresses; everything else is per client IP.
type Subject struct {
	IP        string
	EntrantID string
}

func (s Subject) key() string {
	if s.EntrantID != "" {
		return "entrant:" + s.EntrantID
	}
	return "ip:" + s.IP
}

// Result represents rate limit check result
type Result struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// Sliding window over a sorted set of request timestamps
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

local current_count = redis.call('ZCARD', key)
if current_count >= limit then
	redis.call('PEXPIRE', key, window_ms)
	return {0, current_count}
end

redis.call('ZADD', key, now, ARGV[5])
redis.call('PEXPIRE', key, window_ms)
return {1, current_count + 1}
`)

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client *redis.Client
	config *Config
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, config *Config) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// IsAllowed checks and records one request charged to subject. Whitelisted
// addresses are never limited.
func (r *RateLimiter) IsAllowed(ctx context.Context, subject Subject, limitType RateLimitType) (*Result, error) {
	limit := r.getLimit(limitType)

	if !r.config.Enabled || r.isWhitelisted(subject.IP) {
		return &Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetTime: r.now().Add(r.config.WindowDuration).Unix(),
		}, nil
	}

	key := fmt.Sprintf("pixelevents:ratelimit:%s:%s", limitType, subject.key())
	return r.checkLimit(ctx, key, limit)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int) (*Result, error) {
	now := r.now()
	windowStart := now.Add(-r.config.WindowDuration)

	values, err := slidingWindowScript.Run(ctx, r.client, []string{key},
		windowStart.UnixMilli(),
		now.UnixMilli(),
		limit,
		r.config.WindowDuration.Milliseconds(),
		fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis eval failed: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	count := int(values[1])
	return &Result{
		Allowed:   values[0] == 1,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetTime: now.Add(r.config.WindowDuration).Unix(),
	}, nil
}

func (r *RateLimiter) getLimit(limitType RateLimitType) int {
	switch limitType {
	case RateLimitTypeAdmission:
		return r.config.AdmissionRequests
	case RateLimitTypeOrganizer:
		return r.config.OrganizerRequests
	case RateLimitTypeInbox:
		return r.config.InboxRequests
	case RateLimitTypeHealth:
		return r.config.HealthRequests
	default:
		return r.config.DefaultRequests
	}
}

func (r *RateLimiter) isWhitelisted(ip string) bool {
	return slices.Contains(r.config.WhitelistedIPs, ip)
}
