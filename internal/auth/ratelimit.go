package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter caps hits per key, e.g. login attempts per identifier.
type Limiter interface {
	// Allow counts one hit against key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a per-process token bucket per key: bursts of up to
// limit hits, refilled at limit per window.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	every     rate.Limit
	limiters  map[string]*keyLimiter
	lastSweep time.Time
	now       func() time.Time
}

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows limit hits per key per window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit < 1 {
		limit = 1
	}
	return &MemoryLimiter{
		limit:    limit,
		window:   window,
		every:    rate.Every(window / time.Duration(limit)),
		limiters: make(map[string]*keyLimiter),
		now:      time.Now,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	return l.getLimiter(key, now).AllowN(now, 1), nil
}

func (l *MemoryLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.evictIdle(now)
		l.lastSweep = now
	}

	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(l.every, l.limit)}
		l.limiters[key] = kl
	}
	kl.lastSeen = now
	return kl.limiter
}

// evictIdle drops keys unseen for a full window. Their buckets have refilled,
// so a fresh limiter behaves the same. Caller holds mu.
func (l *MemoryLimiter) evictIdle(now time.Time) {
	for key, kl := range l.limiters {
		if now.Sub(kl.lastSeen) >= l.window {
			delete(l.limiters, key)
		}
	}
}

// RedisLimiter shares fixed windows between instances with INCR + PEXPIRE.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter allows limit hits per key per window, keys under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + "ratelimit:" + key

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}

// NoLimit allows everything.
type NoLimit struct{}

// Allow implements Limiter.
func (NoLimit) Allow(context.Context, string) (bool, error) { return true, nil }
