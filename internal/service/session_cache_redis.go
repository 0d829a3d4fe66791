package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/securekit/secure-session-service/internal/crypto"
	"github.com/securekit/secure-session-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisSessionCacheStore mirrors sessions in redis with the value encrypted
// under the session-cache context, so a cache dump does not leak session
// metadata or token material.
type RedisSessionCacheStore struct {
	client    redis.UniversalClient
	encryptor *crypto.Encryptor
	prefix    string
}

func NewRedisSessionCacheStore(client redis.UniversalClient, encryptor *crypto.Encryptor, prefix string) *RedisSessionCacheStore {
	if prefix == "" {
		prefix = "session_cache"
	}
	return &RedisSessionCacheStore{client: client, encryptor: encryptor, prefix: prefix}
}

func (s *RedisSessionCacheStore) Put(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	payload, err := s.encryptor.Encrypt(ctx, raw, domain.ContextSessionCache)
	if err != nil {
		return err
	}
	encoded, err := payload.Encode()
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sess.ID), encoded, ttl).Err()
}

func (s *RedisSessionCacheStore) Get(ctx context.Context, sessionID string) (*domain.Session, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	encoded, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	payload, err := crypto.DecodePayload(encoded)
	if err != nil {
		return nil, false, err
	}
	raw, err := s.encryptor.Decrypt(ctx, payload)
	if err != nil {
		return nil, false, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, true, nil
}

func (s *RedisSessionCacheStore) Delete(ctx context.Context, sessionID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisSessionCacheStore) key(sessionID string) string {
	return fmt.Sprintf("%s:data:%s", s.prefix, sessionID)
}
