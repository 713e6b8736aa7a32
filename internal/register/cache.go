package register

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "register:summary:version"

// Cache keeps daily summaries in Redis behind a version counter. Closing a
// register bumps the version, so stale day totals are never served. A nil
// cache degrades to pass-through.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchSummary loads a cached summary or populates it using the loader.
func (c *Cache) FetchSummary(ctx context.Context, date time.Time, loader func(context.Context) (DailySummary, error)) (DailySummary, error) {
	if loader == nil {
		return DailySummary{}, errors.New("register: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return DailySummary{}, err
	}
	key := fmt.Sprintf("register:summary:%s:%d", date.Format("2006-01-02"), ver)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached DailySummary
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		return DailySummary{}, err
	}
	summary, err := loader(ctx)
	if err != nil {
		return DailySummary{}, err
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		return DailySummary{}, err
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return DailySummary{}, err
	}
	return summary, nil
}

// Bump invalidates every cached summary by advancing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
