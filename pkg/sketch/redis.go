package sketch

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// Default CMS.INITBYPROB parameters: 0.1% over-count error at 99%
// certainty.
const (
	cmsErrorRate = 0.001
	cmsCertainty = 0.99
)

// RedisCMS is a Counter backed by one RedisBloom Count-Min Sketch key.
type RedisCMS struct {
	rdb *redis.Client
	key string
}

// NewRedisCMS returns a client for the CMS stored under key.
func NewRedisCMS(rdb *redis.Client, key string) *RedisCMS {
	return &RedisCMS{rdb: rdb, key: key}
}

// Init creates the sketch if it does not exist yet. An "already
// exists" response from the module is not an error.
func (c *RedisCMS) Init(ctx context.Context) error {
	err := c.rdb.Do(ctx, "CMS.INITBYPROB", c.key, cmsErrorRate, cmsCertainty).Err()
	if err != nil && strings.Contains(err.Error(), "key already exists") {
		return nil
	}
	return err
}

func (c *RedisCMS) IncrBy(ctx context.Context, item string, delta int64) error {
	return c.rdb.Do(ctx, "CMS.INCRBY", c.key, item, delta).Err()
}

func (c *RedisCMS) Query(ctx context.Context, items []string) ([]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(items)+2)
	args = append(args, "CMS.QUERY", c.key)
	for _, it := range items {
		args = append(args, it)
	}
	res, err := c.rdb.Do(ctx, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("cms query %s: %w", c.key, err)
	}
	raw, ok := res.([]interface{})
	if !ok || len(raw) != len(items) {
		return nil, fmt.Errorf("cms query %s: unexpected reply %T", c.key, res)
	}
	counts := make([]int64, len(items))
	for i, v := range raw {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("cms query %s: non-integer count %T", c.key, v)
		}
		counts[i] = n
	}
	return counts, nil
}

// Reset deletes the sketch and re-creates it empty.
func (c *RedisCMS) Reset(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		return err
	}
	return c.Init(ctx)
}

// RedisCuckoo tracks set membership (service-call pairs) with a
// RedisBloom cuckoo filter.
type RedisCuckoo struct {
	rdb      *redis.Client
	key      string
	capacity int64
}

// NewRedisCuckoo returns a client for the cuckoo filter under key.
func NewRedisCuckoo(rdb *redis.Client, key string, capacity int64) *RedisCuckoo {
	return &RedisCuckoo{rdb: rdb, key: key, capacity: capacity}
}

// Init reserves the filter if it does not exist yet.
func (c *RedisCuckoo) Init(ctx context.Context) error {
	err := c.rdb.Do(ctx, "CF.RESERVE", c.key, c.capacity).Err()
	if err != nil && strings.Contains(err.Error(), "exists") {
		return nil
	}
	return err
}

// Add records item membership.
func (c *RedisCuckoo) Add(ctx context.Context, item string) error {
	return c.rdb.Do(ctx, "CF.ADD", c.key, item).Err()
}

// Contains reports whether item was (probably) added before.
func (c *RedisCuckoo) Contains(ctx context.Context, item string) (bool, error) {
	n, err := c.rdb.Do(ctx, "CF.EXISTS", c.key, item).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
