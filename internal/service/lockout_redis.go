package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/securekit/secure-session-service/internal/security"

	"github.com/redis/go-redis/v9"
)

// RedisLockoutStore counts failed attempts per identity. INCR plus a
// first-write expiry keeps the increment atomic across workers and bounds
// growth: every counter dies with the lockout window.
type RedisLockoutStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLockoutStore(client redis.UniversalClient, prefix string) *RedisLockoutStore {
	if prefix == "" {
		prefix = "auth_lockout"
	}
	return &RedisLockoutStore{client: client, prefix: prefix}
}

func (s *RedisLockoutStore) RegisterFailure(ctx context.Context, identity string, window time.Duration) (int64, error) {
	if s.client == nil {
		return 0, nil
	}
	key := s.key(identity)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisLockoutStore) Failures(ctx context.Context, identity string) (int64, error) {
	if s.client == nil {
		return 0, nil
	}
	n, err := s.client.Get(ctx, s.key(identity)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *RedisLockoutStore) Reset(ctx context.Context, identity string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.key(identity)).Err()
}

func (s *RedisLockoutStore) key(identity string) string {
	return fmt.Sprintf("%s:%s", s.prefix, security.HashToken(normalizeIdentity(identity)))
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
