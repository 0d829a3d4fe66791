package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/securekit/secure-session-service/internal/critical"
	"github.com/securekit/secure-session-service/internal/crypto"
	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"
	"github.com/securekit/secure-session-service/internal/repository"
	"github.com/securekit/secure-session-service/internal/security"
)

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, client
}

// serviceHarness wires the full service stack over sqlite and miniredis.
type serviceHarness struct {
	db        *gorm.DB
	redis     *redis.Client
	mini      *miniredis.Miniredis
	users     repository.UserRepository
	sessions  repository.SessionRepository
	tokensRep repository.TokenRepository
	auditRep  repository.AuditRepository
	jwtMgr    *security.JWTManager
	tokens    *TokenService
	session   *SessionService
	auth      *AuthService
	lockout   *RedisLockoutStore
	blacklist *RedisTokenBlacklist
	cache     *RedisSessionCacheStore
}

type harnessOptions struct {
	allowIPChange bool
	sessionTTL    time.Duration
	maxAttempts   int
	scorer        *AnomalyScorer
}

func newServiceHarness(t *testing.T, opts harnessOptions) *serviceHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mini, client := newRedisClientForTest(t)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditRep := repository.NewAuditRepository(db)
	auditor := observability.NewAuditLogger(log, auditRep)

	keyRepo := repository.NewKeyRepository(db)
	keyring := crypto.NewKeyring(keyRepo, auditor, 5*time.Minute, 24*time.Hour)
	encryptor := crypto.NewEncryptor(keyring, auditor, 1<<20)
	runner := critical.NewRunner(db, log, auditor)

	sessionRepo := repository.NewSessionRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	userRepo := repository.NewUserRepository(db)

	jwtMgr := security.NewJWTManager("test-issuer", "test-audience", "test-access-secret-value", "test-refresh-secret-value")
	tokens := NewTokenService(jwtMgr, tokenRepo, "test-pepper", 15*time.Minute, 24*time.Hour)

	ttl := opts.sessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cache := NewRedisSessionCacheStore(client, encryptor, "session")
	session := NewSessionService(SessionServiceParams{
		Sessions:      sessionRepo,
		Cache:         cache,
		Encryptor:     encryptor,
		Runner:        runner,
		Auditor:       auditor,
		Scorer:        opts.scorer,
		Tokens:        tokens,
		Logger:        log,
		TTL:           ttl,
		AllowIPChange: opts.allowIPChange,
	})

	maxAttempts := opts.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	lockout := NewRedisLockoutStore(client, "lockout")
	blacklist := NewRedisTokenBlacklist(client, "blacklist")
	auth := NewAuthService(AuthServiceParams{
		Users:         userRepo,
		Sessions:      session,
		Tokens:        tokens,
		JWTManager:    jwtMgr,
		Lockout:       lockout,
		Blacklist:     blacklist,
		Auditor:       auditor,
		MaxAttempts:   maxAttempts,
		LockoutWindow: time.Minute,
	})

	return &serviceHarness{
		db:        db,
		redis:     client,
		mini:      mini,
		users:     userRepo,
		sessions:  sessionRepo,
		tokensRep: tokenRepo,
		auditRep:  auditRep,
		jwtMgr:    jwtMgr,
		tokens:    tokens,
		session:   session,
		auth:      auth,
		lockout:   lockout,
		blacklist: blacklist,
		cache:     cache,
	}
}

func (h *serviceHarness) createUser(t *testing.T, username, password string, perms []string) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Roles:        []string{"user"},
		Permissions:  perms,
		Active:       true,
	}
	if err := h.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
