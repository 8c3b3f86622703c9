package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/item-catalog/internal/core/domain"
)

const profileKeyPrefix = "profile:"

// RedisAdapter is a profile cache shared by every replica of the service.
// Expiry is delegated to Redis key TTLs.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Get(ctx context.Context, subjectID string) (domain.Profile, bool, error) {
	raw, err := r.client.Get(ctx, profileKeyPrefix+subjectID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var profile domain.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return profile, true, nil
}

func (r *RedisAdapter) Set(ctx context.Context, subjectID string, profile domain.Profile, ttl time.Duration) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return r.client.Set(ctx, profileKeyPrefix+subjectID, raw, ttl).Err()
}
