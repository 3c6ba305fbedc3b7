package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const quotaKeyPrefix = "growth:quota"

// Quota is the read-only view of an actor's daily link allowance.
type Quota struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimitError is returned when link creation would exceed the daily ceiling.
// It carries the data the UI needs to inform the user.
type RateLimitError struct {
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily link limit of %d reached, resets at %s", e.Limit, e.ResetAt.Format(time.RFC3339))
}

// QuotaCounters abstracts the shared atomic counter store (redis in production).
type QuotaCounters interface {
	// Get returns the current count for key, 0 when the key is absent.
	Get(ctx context.Context, key string) (int64, error)
	// IncrWithTTL atomically increments key, applying ttl on first increment,
	// and returns the new count.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimiter tracks per-actor link creations in calendar-day (UTC) windows.
// Check never mutates; Increment is the only write and is atomic against
// concurrent increments.
type RateLimiter struct {
	counters QuotaCounters
	limit    int
	now      func() time.Time
}

// NewRateLimiter builds a limiter with the given daily ceiling.
func NewRateLimiter(counters QuotaCounters, limit int) *RateLimiter {
	return &RateLimiter{
		counters: counters,
		limit:    limit,
		now:      time.Now,
	}
}

// Check reports the actor's remaining quota. It is side-effect-free so the UI
// can call it speculatively before committing to a creation.
func (l *RateLimiter) Check(ctx context.Context, actorID string) (Quota, error) {
	now := l.now().UTC()
	count, err := l.counters.Get(ctx, l.key(actorID, now))
	if err != nil {
		return Quota{}, fmt.Errorf("quota check: %w", err)
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Quota{
		Allowed:   int(count) < l.limit,
		Remaining: remaining,
		Limit:     l.limit,
		ResetAt:   nextUTCMidnight(now),
	}, nil
}

// Increment records one successful link creation. The TTL outlives the day
// boundary by an hour so a counter never expires mid-window under clock skew.
func (l *RateLimiter) Increment(ctx context.Context, actorID string) error {
	now := l.now().UTC()
	ttl := nextUTCMidnight(now).Sub(now) + time.Hour
	if _, err := l.counters.IncrWithTTL(ctx, l.key(actorID, now), ttl); err != nil {
		return fmt.Errorf("quota increment: %w", err)
	}
	return nil
}

func (l *RateLimiter) key(actorID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", quotaKeyPrefix, actorID, now.Format("2006-01-02"))
}

func nextUTCMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// redisQuotaCounters implements QuotaCounters on a redis client.
type redisQuotaCounters struct {
	client *redis.Client
}

// NewRedisQuotaCounters wraps a redis client as a QuotaCounters.
func NewRedisQuotaCounters(client *redis.Client) QuotaCounters {
	return &redisQuotaCounters{client: client}
}

func (c *redisQuotaCounters) Get(ctx context.Context, key string) (int64, error) {
	count, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

func (c *redisQuotaCounters) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		c.client.Expire(ctx, key, ttl)
	}
	return count, nil
}
