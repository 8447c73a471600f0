package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Service caches JSON values grouped under an owner key. Each owner is one
// Redis hash, so everything cached for it is dropped with a single DEL.
type Service interface {
	Get(ctx context.Context, key, field string, dest interface{}) error
	// Set stores value under field and restarts the TTL of the whole key
	Set(ctx context.Context, key, field string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type service struct {
	client *redis.Client
}

func NewService(client *redis.Client) Service {
	return &service{client: client}
}

func (s *service) Get(ctx context.Context, key, field string, dest interface{}) error {
	val, err := s.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (s *service) Set(ctx context.Context, key, field string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, data)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (s *service) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

// Load is cache-aside for one field: a hit is returned as is, anything else
// runs fetch. Cache failures never fail the read, only fetch errors do.
func Load[T any](ctx context.Context, c Service, key, field string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	var cached T
	if err := c.Get(ctx, key, field, &cached); err == nil {
		return cached, nil
	}

	value, err := fetch()
	if err != nil {
		return value, err
	}
	// a failed fill only costs the next reader a refetch
	_ = c.Set(ctx, key, field, value, ttl)
	return value, nil
}
