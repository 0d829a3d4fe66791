package service

import (
	"context"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
)

// SessionCacheStore mirrors session records for fast lookup. The durable
// store is the source of truth; a cache miss is never an error.
type SessionCacheStore interface {
	Put(ctx context.Context, s *domain.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*domain.Session, bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// LockoutStore counts failed credential attempts per identity. Entries carry
// the lockout window as TTL, so stale counters expire on their own.
type LockoutStore interface {
	RegisterFailure(ctx context.Context, identity string, window time.Duration) (int64, error)
	Failures(ctx context.Context, identity string) (int64, error)
	Reset(ctx context.Context, identity string) error
}

// TokenBlacklist holds revoked-token hashes until the token's natural expiry.
type TokenBlacklist interface {
	Add(ctx context.Context, tokenHash string, until time.Time) error
	Contains(ctx context.Context, tokenHash string) (bool, error)
}
