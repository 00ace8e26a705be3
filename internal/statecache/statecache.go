// Package statecache persists scheduling state in Redis so a daemon restart
// does not reset the reminder interval. It is optional: a nil client turns
// every operation into a no-op.
package statecache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "reminderd:last_fire"

// Cache stores the last fire time under a fixed key.
type Cache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// New creates the cache. rdb may be nil; the cache then reports no stored
// value and swallows writes.
func New(rdb *redis.Client, key string, ttl time.Duration) *Cache {
	if key == "" {
		key = defaultKey
	}
	return &Cache{rdb: rdb, key: key, ttl: ttl}
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// LastFire returns the persisted last fire time, if any.
func (c *Cache) LastFire(ctx context.Context) (time.Time, bool) {
	if !c.Enabled() {
		return time.Time{}, false
	}
	val, err := c.rdb.Get(ctx, c.key).Result()
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetLastFire persists the last fire time.
func (c *Cache) SetLastFire(ctx context.Context, t time.Time) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Set(ctx, c.key, t.Format(time.RFC3339Nano), c.ttl).Err()
}

// Ping checks the Redis connection for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return errors.New("redis not configured")
	}
	return c.rdb.Ping(ctx).Err()
}
