package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patchline/api/internal/domain"
)

// CartRepository stores carts as JSON documents in Redis.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository wraps an existing Redis client. A non-positive ttl
// disables expiry.
func NewCartRepository(client *redis.Client, ttl time.Duration) (*CartRepository, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	return &CartRepository{client: client, ttl: ttl}, nil
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, bool, error) {
	raw, err := r.client.Get(ctx, cartKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, false, nil
	}
	if err != nil {
		return domain.Cart{}, false, fmt.Errorf("redis: get cart: %w", err)
	}
	var cart domain.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return domain.Cart{}, false, fmt.Errorf("redis: decode cart: %w", err)
	}
	return cart, true, nil
}

func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("redis: encode cart: %w", err)
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, cartKey(cart.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save cart: %w", err)
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis: delete cart: %w", err)
	}
	return nil
}
