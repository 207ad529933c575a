package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV persists session state in Redis. Entries carry a TTL so abandoned
// sessions age out on their own.
type RedisKV struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisKV wraps an existing Redis client. A non-positive ttl disables
// expiry.
func NewRedisKV(client *redis.Client, ttl time.Duration) (*RedisKV, error) {
	if client == nil {
		return nil, errors.New("sessions: redis client is required")
	}
	return &RedisKV{client: client, ttl: ttl}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sessions: redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("sessions: redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("sessions: redis delete: %w", err)
	}
	return nil
}
