// Package ratelimit throttles Instagram resolutions per user and process-wide.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown enforces a minimum interval between Instagram requests of one user
type Cooldown interface {
	// Acquire checks and records the user's request in one step. A zero
	// return admits the request and starts a new window; a positive return
	// is the time left in the current window and changes nothing.
	Acquire(ctx context.Context, userID int64) (time.Duration, error)
}

// MemoryCooldown keeps cooldown windows in process memory
type MemoryCooldown struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[int64]time.Time
}

// NewMemoryCooldown creates an in-memory cooldown with the given window
func NewMemoryCooldown(window time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		window: window,
		now:    time.Now,
		last:   make(map[int64]time.Time),
	}
}

// WithClock replaces the time source, for tests
func (c *MemoryCooldown) WithClock(now func() time.Time) *MemoryCooldown {
	c.now = now
	return c
}

// Acquire implements Cooldown
func (c *MemoryCooldown) Acquire(_ context.Context, userID int64) (time.Duration, error) {
	if c.window <= 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if prev, ok := c.last[userID]; ok {
		if elapsed := now.Sub(prev); elapsed < c.window {
			return c.window - elapsed, nil
		}
	}
	c.last[userID] = now
	return 0, nil
}

// Prune drops users whose window has elapsed and returns how many were removed
func (c *MemoryCooldown) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, ts := range c.last {
		if now.Sub(ts) >= c.window {
			delete(c.last, id)
			removed++
		}
	}
	return removed
}

// Reset forgets every user
func (c *MemoryCooldown) Reset() {
	c.mu.Lock()
	c.last = make(map[int64]time.Time)
	c.mu.Unlock()
}

// Len returns the number of tracked users
func (c *MemoryCooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// redisCmdable is the subset of the Redis client used for cooldowns
type redisCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// noExpiry is what PTTL reports for a key that exists without a TTL
const noExpiry = -1 * time.Nanosecond

// RedisCooldown shares cooldown windows between bot replicas. The window is
// the key's TTL, so expiry needs no sweeping.
type RedisCooldown struct {
	client redisCmdable
	window time.Duration
	prefix string
}

// NewRedisCooldown creates a Redis-backed cooldown
func NewRedisCooldown(client redisCmdable, window time.Duration, prefix string) *RedisCooldown {
	return &RedisCooldown{client: client, window: window, prefix: prefix}
}

// Acquire implements Cooldown
func (c *RedisCooldown) Acquire(ctx context.Context, userID int64) (time.Duration, error) {
	if c.window <= 0 {
		return 0, nil
	}

	key := c.prefix + strconv.FormatInt(userID, 10)

	// A key expiring between SETNX and PTTL gets one more SETNX attempt.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := c.client.SetNX(ctx, key, time.Now().Unix(), c.window).Result()
		if err != nil {
			return 0, err
		}
		if ok {
			return 0, nil
		}

		ttl, err := c.client.PTTL(ctx, key).Result()
		if err != nil {
			return 0, err
		}
		switch {
		case ttl > 0:
			return ttl, nil
		case ttl == noExpiry:
			// a key left without a TTL starts a fresh window
			if err := c.client.Set(ctx, key, time.Now().Unix(), c.window).Err(); err != nil {
				return 0, err
			}
			return 0, nil
		}
	}
	return 0, nil
}
