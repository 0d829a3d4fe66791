package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/security"
)

func TestLockoutStoreCountsAndExpires(t *testing.T) {
	mini, client := newRedisClientForTest(t)
	store := NewRedisLockoutStore(client, "lockout")
	ctx := context.Background()

	if n, err := store.Failures(ctx, "alice"); err != nil || n != 0 {
		t.Fatalf("fresh identity: n=%d err=%v", n, err)
	}

	for want := int64(1); want <= 3; want++ {
		n, err := store.RegisterFailure(ctx, "alice", time.Minute)
		if err != nil {
			t.Fatalf("register %d: %v", want, err)
		}
		if n != want {
			t.Fatalf("expected count %d, got %d", want, n)
		}
	}

	mini.FastForward(2 * time.Minute)
	if n, err := store.Failures(ctx, "alice"); err != nil || n != 0 {
		t.Fatalf("expected counter expired, n=%d err=%v", n, err)
	}
}

func TestLockoutStoreNormalizesIdentity(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisLockoutStore(client, "lockout")
	ctx := context.Background()

	if _, err := store.RegisterFailure(ctx, "  Alice ", time.Minute); err != nil {
		t.Fatalf("register: %v", err)
	}
	n, err := store.Failures(ctx, "alice")
	if err != nil {
		t.Fatalf("failures: %v", err)
	}
	if n != 1 {
		t.Fatalf("case and whitespace variants must share a counter, got %d", n)
	}
}

func TestLockoutStoreReset(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisLockoutStore(client, "lockout")
	ctx := context.Background()

	if _, err := store.RegisterFailure(ctx, "alice", time.Minute); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.Reset(ctx, "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := store.Failures(ctx, "alice"); n != 0 {
		t.Fatalf("expected 0 after reset, got %d", n)
	}
}

func TestTokenBlacklistAddContainsExpire(t *testing.T) {
	mini, client := newRedisClientForTest(t)
	store := NewRedisTokenBlacklist(client, "blacklist")
	ctx := context.Background()

	hash := security.HashToken("revoked-token")
	if err := store.Add(ctx, hash, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("add: %v", err)
	}

	found, err := store.Contains(ctx, hash)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !found {
		t.Fatal("blacklisted hash must be found")
	}

	if found, _ := store.Contains(ctx, security.HashToken("other")); found {
		t.Fatal("unknown hash must not be found")
	}

	mini.FastForward(2 * time.Minute)
	if found, _ := store.Contains(ctx, hash); found {
		t.Fatal("entry must expire with the token")
	}
}

func TestTokenBlacklistSkipsExpiredTokens(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisTokenBlacklist(client, "blacklist")
	ctx := context.Background()

	hash := security.HashToken("already-expired")
	if err := store.Add(ctx, hash, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("add expired: %v", err)
	}
	if found, _ := store.Contains(ctx, hash); found {
		t.Fatal("an already expired token needs no blacklist entry")
	}
}

func TestSessionCacheStoreRoundTrip(t *testing.T) {
	h := newServiceHarness(t, harnessOptions{})
	ctx := context.Background()

	sess := &domain.Session{
		ID:            "cache-sess",
		UserID:        5,
		TokenHash:     "h",
		IP:            "1.2.3.4",
		UserAgent:     "Chrome",
		SecurityLevel: "standard",
		Metadata:      map[string]string{"device": "laptop"},
		ExpiresAt:     time.Now().Add(time.Hour).UTC(),
	}
	if err := h.cache.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := h.cache.Get(ctx, "cache-sess")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.UserID != 5 || got.IP != "1.2.3.4" || got.Metadata["device"] != "laptop" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSessionCacheStoreValueIsEncrypted(t *testing.T) {
	h := newServiceHarness(t, harnessOptions{})
	ctx := context.Background()

	sess := &domain.Session{
		ID:        "enc-sess",
		UserID:    5,
		TokenHash: "top-secret-hash",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := h.cache.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := h.redis.Get(ctx, "session:data:enc-sess").Result()
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if strings.Contains(raw, "top-secret-hash") || strings.Contains(raw, `"user_id"`) {
		t.Fatal("cache value must not contain plaintext session fields")
	}
}

func TestSessionCacheStoreMissAndDelete(t *testing.T) {
	h := newServiceHarness(t, harnessOptions{})
	ctx := context.Background()

	if _, ok, err := h.cache.Get(ctx, "absent"); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	sess := &domain.Session{ID: "del-sess", UserID: 1, TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)}
	if err := h.cache.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := h.cache.Delete(ctx, "del-sess"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := h.cache.Get(ctx, "del-sess"); ok {
		t.Fatal("expected miss after delete")
	}
}
