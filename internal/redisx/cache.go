package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

type PopularCache struct {
	Redis redis.Cmdable
	TTL   time.Duration
}

// GetPopular decodes the cached listing into dst; false on a miss.
func (c *PopularCache) GetPopular(ctx context.Context, dst any) (bool, error) {
	b, err := c.Redis.Get(ctx, KeyPopularProducts).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", KeyPopularProducts, err)
	}
	return true, nil
}

func (c *PopularCache) SetPopular(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = TTLPopular
	}
	return c.Redis.Set(ctx, KeyPopularProducts, b, ttl).Err()
}

func (c *PopularCache) InvalidatePopular(ctx context.Context) error {
	return c.Redis.Del(ctx, KeyPopularProducts).Err()
}

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	Redis   redis.Cmdable
	Service string
}

func (d *Dedup) key(eventID string) string { return fmt.Sprintf(KeyDedup, d.Service, eventID) }

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.Redis, d.key(eventID))
}

func (d *Dedup) Mark(ctx context.Context, eventID string) error {
	return d.Redis.Set(ctx, d.key(eventID), "1", TTLDedup).Err()
}
