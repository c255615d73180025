package attempts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordScript increments the failure counter and restarts its expiry so the
// window always runs from the most recent failure.
// KEYS[1] = attempt key
// ARGV[1] = window in milliseconds
// Returns: [failures, ttl_ms]
var recordScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return {n, tonumber(ARGV[1])}
`)

// RedisStore shares attempt records between instances.
type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	maxFailures int
	window      time.Duration
}

func NewRedisStore(client redis.UniversalClient, maxFailures int, window time.Duration) *RedisStore {
	return &RedisStore{
		client:      client,
		prefix:      "attempts:",
		maxFailures: maxFailures,
		window:      window,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) status(failures int, ttl time.Duration) Status {
	st := Status{Failures: failures}
	if failures >= s.maxFailures {
		st.Locked = true
		st.RetryAfter = ttl
	}
	return st
}

func (s *RedisStore) Check(ctx context.Context, id string) (Status, error) {
	k := s.key(id)
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Status{}, fmt.Errorf("attempts check: %w", err)
	}

	n, err := getCmd.Int()
	if errors.Is(err, redis.Nil) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("attempts check: %w", err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = s.window
	}
	return s.status(n, ttl), nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, id string) (Status, error) {
	res, err := recordScript.Run(ctx, s.client, []string{s.key(id)}, s.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Status{}, fmt.Errorf("attempts record: %w", err)
	}
	if len(res) != 2 {
		return Status{}, fmt.Errorf("attempts record: unexpected reply %v", res)
	}
	return s.status(int(res[0]), time.Duration(res[1])*time.Millisecond), nil
}

func (s *RedisStore) Reset(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("attempts reset: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
