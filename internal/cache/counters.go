// Package cache implements the advisory visit-counter cache on Redis.
// Counters are a read optimization ahead of quota checks and are never
// the source of truth: every value is rebuildable from visit rows, every
// key carries a TTL, and every visit write explicitly invalidates the
// keys it touches. A stale counter at worst lets a registration through
// optimistically; the recalculation engine corrects it afterwards.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterCache caches per-entity period counts and per-host day counts.
// A nil Redis client disables the cache entirely; every lookup misses and
// every write is a no-op, so callers never branch on availability.
type CounterCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCounterCache builds a cache over the given client. ttl bounds how
// long a counter may serve reads without being rebuilt.
func NewCounterCache(rdb *redis.Client, ttl time.Duration) *CounterCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CounterCache{rdb: rdb, ttl: ttl, prefix: "visits"}
}

func (c *CounterCache) entityKey(entityID uint64, period string) string {
	return fmt.Sprintf("%s:cnt:%d:%s", c.prefix, entityID, period)
}

func (c *CounterCache) hostKey(hostID uint64, day string) string {
	return fmt.Sprintf("%s:host:%d:%s", c.prefix, hostID, day)
}

// GetEntityCount returns the cached count for an entity and period key
// ("2006-01" or "2006"). ok is false on miss, disabled cache, or error.
func (c *CounterCache) GetEntityCount(ctx context.Context, entityID uint64, period string) (int, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	s, err := c.rdb.Get(ctx, c.entityKey(entityID, period)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetEntityCounts stores freshly computed counts, keyed by period.
func (c *CounterCache) SetEntityCounts(ctx context.Context, entityID uint64, counts map[string]int) {
	if c == nil || c.rdb == nil {
		return
	}
	pipe := c.rdb.Pipeline()
	for period, n := range counts {
		pipe.Set(ctx, c.entityKey(entityID, period), strconv.Itoa(n), c.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

// InvalidateEntity drops the month and year counters a visit write on the
// given date touches. Errors are ignored; a lingering key only lives
// until its TTL.
func (c *CounterCache) InvalidateEntity(ctx context.Context, entityID uint64, date time.Time) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx,
		c.entityKey(entityID, date.UTC().Format("2006-01")),
		c.entityKey(entityID, date.UTC().Format("2006")),
	)
}

// GetHostDayCount returns the cached host-capacity count for one day.
func (c *CounterCache) GetHostDayCount(ctx context.Context, hostID uint64, day time.Time) (int, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	s, err := c.rdb.Get(ctx, c.hostKey(hostID, day.UTC().Format("2006-01-02"))).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetHostDayCount stores a freshly computed host-capacity count.
func (c *CounterCache) SetHostDayCount(ctx context.Context, hostID uint64, day time.Time, n int) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Set(ctx, c.hostKey(hostID, day.UTC().Format("2006-01-02")), strconv.Itoa(n), c.ttl)
}

// InvalidateHostDay drops the host-capacity counter for one day.
func (c *CounterCache) InvalidateHostDay(ctx context.Context, hostID uint64, day time.Time) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, c.hostKey(hostID, day.UTC().Format("2006-01-02")))
}
