package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenBlacklist stores revoked-token hashes with a TTL matching the
// token's remaining lifetime, so the set can only ever hold tokens that would
// otherwise still verify.
type RedisTokenBlacklist struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisTokenBlacklist(client redis.UniversalClient, prefix string) *RedisTokenBlacklist {
	if prefix == "" {
		prefix = "token_blacklist"
	}
	return &RedisTokenBlacklist{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisTokenBlacklist) Add(ctx context.Context, tokenHash string, until time.Time) error {
	if s.client == nil {
		return nil
	}
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		// already expired, nothing left to revoke
		return nil
	}
	return s.client.Set(ctx, s.key(tokenHash), "1", ttl).Err()
}

func (s *RedisTokenBlacklist) Contains(ctx context.Context, tokenHash string) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	_, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisTokenBlacklist) key(tokenHash string) string {
	return fmt.Sprintf("%s:%s", s.prefix, tokenHash)
}
