package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const summaryKeyPrefix = "ledger:summary:"

// Cache keeps balance summaries in Redis. Entries are dropped whenever the
// customer's ledger moves, so reads between posts are served without hitting
// the accounts table. A nil cache degrades to pass-through.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func summaryKey(customerID int64) string {
	return fmt.Sprintf("%s%d", summaryKeyPrefix, customerID)
}

// FetchSummary loads a cached summary or populates it via loader.
func (c *Cache) FetchSummary(ctx context.Context, customerID int64, loader func(context.Context) (BalanceSummary, error)) (BalanceSummary, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := summaryKey(customerID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached BalanceSummary
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		return BalanceSummary{}, err
	}
	summary, err := loader(ctx)
	if err != nil {
		return BalanceSummary{}, err
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		return BalanceSummary{}, err
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return BalanceSummary{}, err
	}
	return summary, nil
}

// Invalidate drops the cached summary for one customer.
func (c *Cache) Invalidate(ctx context.Context, customerID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(customerID)).Err()
}
