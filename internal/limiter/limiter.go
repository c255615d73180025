package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raakeshmj/vpnshield/internal/cache"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Result describes one fixed-window decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left in the current window.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

func decide(count int64, limit int, resetAt time.Time) Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// luaScript implements a fixed window counter atomically
// KEYS[1] = rate limit key
// ARGV[1] = window in milliseconds
// Returns: [count, ttl_ms]
const luaScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

type RedisLimiter struct {
	client redis.UniversalClient
	script *redis.Script
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, script: redis.NewScript(luaScript), now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	res, err := l.script.Run(ctx, l.client, []string{"ratelimit:" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) != 2 {
		return Result{}, errors.New("limiter: unexpected script reply")
	}
	r := decide(res[0], limit, l.now().Add(time.Duration(res[1])*time.Millisecond))
	if !r.Allowed {
		return r, ErrRateLimitExceeded
	}
	return r, nil
}

// MemoryLimiter keeps counters in a process-local cache.
type MemoryLimiter struct {
	cache *cache.MemoryCache
}

func NewMemoryLimiter(c *cache.MemoryCache) *MemoryLimiter {
	return &MemoryLimiter{cache: c}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	n, resetAt := l.cache.Incr("ratelimit:"+key, window)
	r := decide(n, limit, resetAt)
	if !r.Allowed {
		return r, ErrRateLimitExceeded
	}
	return r, nil
}

// Sweep reclaims expired windows.
func (l *MemoryLimiter) Sweep() int {
	return l.cache.Sweep()
}

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = (*MemoryLimiter)(nil)
)
