package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patchline/api/internal/checkout"
)

// CheckoutRepository stores checkout state as JSON documents in Redis.
type CheckoutRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCheckoutRepository wraps an existing Redis client. A non-positive ttl
// disables expiry.
func NewCheckoutRepository(client *redis.Client, ttl time.Duration) (*CheckoutRepository, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	return &CheckoutRepository{client: client, ttl: ttl}, nil
}

func checkoutKey(userID string) string {
	return fmt.Sprintf("checkout:%s", userID)
}

func (r *CheckoutRepository) Get(ctx context.Context, userID string) (checkout.State, bool, error) {
	raw, err := r.client.Get(ctx, checkoutKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return checkout.State{}, false, nil
	}
	if err != nil {
		return checkout.State{}, false, fmt.Errorf("redis: get checkout state: %w", err)
	}
	var state checkout.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return checkout.State{}, false, fmt.Errorf("redis: decode checkout state: %w", err)
	}
	return state, true, nil
}

func (r *CheckoutRepository) Save(ctx context.Context, state checkout.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: encode checkout state: %w", err)
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, checkoutKey(state.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save checkout state: %w", err)
	}
	return nil
}

func (r *CheckoutRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, checkoutKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis: delete checkout state: %w", err)
	}
	return nil
}
