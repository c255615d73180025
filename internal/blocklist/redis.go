package blocklist

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "blocklist:ips"

// RedisSet stores the blocklist in a single Redis set so every instance sees
// the same entries.
type RedisSet struct {
	client redis.UniversalClient
	key    string
}

func NewRedisSet(client redis.UniversalClient) *RedisSet {
	return &RedisSet{client: client, key: defaultKey}
}

func (s *RedisSet) Contains(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("blocklist contains: %w", err)
	}
	return ok, nil
}

func (s *RedisSet) Add(ctx context.Context, id string) error {
	if err := s.client.SAdd(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("blocklist add: %w", err)
	}
	return nil
}

func (s *RedisSet) Remove(ctx context.Context, id string) error {
	if err := s.client.SRem(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("blocklist remove: %w", err)
	}
	return nil
}

func (s *RedisSet) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("blocklist list: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ Set = (*RedisSet)(nil)
