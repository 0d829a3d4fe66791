package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"
	"github.com/securekit/secure-session-service/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/sync/singleflight"
)

const (
	keyMaterialLen = 32

	// upper bound on cached key records; a long-lived process accumulates
	// retired keys across rotations otherwise
	defaultKeyCacheCap = 256
)

type cachedKey struct {
	key     *domain.EncryptionKey
	fetched time.Time
}

// Keyring serves key material per context out of an append-only history.
// Active-key lookups are cached with a TTL well below the rotation interval,
// bounding how long a reader can keep encrypting under a just-retired key.
// Lookups by id hit retired keys too; in-flight payloads stay decryptable.
type Keyring struct {
	repo             repository.KeyRepository
	auditor          *observability.AuditLogger
	cacheTTL         time.Duration
	rotationInterval time.Duration
	now              func() time.Time

	mu      sync.RWMutex
	active  map[string]cachedKey
	byID    map[string]*domain.EncryptionKey
	byIDCap int
	group   singleflight.Group
}

func NewKeyring(repo repository.KeyRepository, auditor *observability.AuditLogger, cacheTTL, rotationInterval time.Duration) *Keyring {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if rotationInterval <= 0 {
		rotationInterval = 24 * time.Hour
	}
	return &Keyring{
		repo:             repo,
		auditor:          auditor,
		cacheTTL:         cacheTTL,
		rotationInterval: rotationInterval,
		now:              time.Now,
		active:           make(map[string]cachedKey),
		byID:             make(map[string]*domain.EncryptionKey),
		byIDCap:          defaultKeyCacheCap,
	}
}

// Active returns the active key for a context, provisioning the first key if
// the context has never been rotated.
func (k *Keyring) Active(ctx context.Context, keyContext string) (*domain.EncryptionKey, error) {
	k.mu.RLock()
	entry, ok := k.active[keyContext]
	k.mu.RUnlock()
	if ok && k.now().Sub(entry.fetched) < k.cacheTTL {
		return entry.key, nil
	}

	v, err, _ := k.group.Do("active:"+keyContext, func() (any, error) {
		key, err := k.repo.ActiveByContext(ctx, keyContext)
		if errors.Is(err, repository.ErrKeyNotFound) {
			return k.Rotate(ctx, keyContext)
		}
		if err != nil {
			return nil, err
		}
		k.store(keyContext, key)
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.EncryptionKey), nil
}

func (k *Keyring) ByID(ctx context.Context, id string) (*domain.EncryptionKey, error) {
	k.mu.RLock()
	key, ok := k.byID[id]
	k.mu.RUnlock()
	if ok {
		return key, nil
	}
	key, err := k.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.cacheByID(key)
	k.mu.Unlock()
	return key, nil
}

// Rotate appends a new active key for the context and retires the previous
// one. The retired key stays in the history, so payloads encrypted under it
// remain decryptable.
func (k *Keyring) Rotate(ctx context.Context, keyContext string) (*domain.EncryptionKey, error) {
	material := make([]byte, keyMaterialLen)
	if _, err := rand.Read(material); err != nil {
		observability.RecordKeyRotation(ctx, keyContext, "error")
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	key := &domain.EncryptionKey{
		ID:        uuid.NewString(),
		Context:   keyContext,
		Material:  material,
		CreatedAt: k.now().UTC(),
	}
	previousID, err := k.repo.Rotate(ctx, key)
	if err != nil {
		observability.RecordKeyRotation(ctx, keyContext, "error")
		k.auditor.Warning(ctx, "key_rotation", domain.SecurityContext{}, map[string]string{
			"context": keyContext,
			"outcome": "failure",
		})
		return nil, err
	}
	k.store(keyContext, key)
	observability.RecordKeyRotation(ctx, keyContext, "success")
	k.auditor.Event(ctx, "key_rotation", domain.SecurityContext{}, map[string]string{
		"context":      keyContext,
		"key_id":       key.ID,
		"retired_from": previousID,
	})
	return key, nil
}

// RotateAll rotates every known context plus the built-in ones.
func (k *Keyring) RotateAll(ctx context.Context) error {
	contexts, err := k.repo.Contexts(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, c := range append(contexts, domain.ContextDefault, domain.ContextSessionCache) {
		if seen[c] {
			continue
		}
		seen[c] = true
		if _, err := k.Rotate(ctx, c); err != nil {
			return fmt.Errorf("rotate context %q: %w", c, err)
		}
	}
	return nil
}

// RotateExpired rotates only contexts whose active key is older than the
// rotation interval. Safe to run on a timer.
func (k *Keyring) RotateExpired(ctx context.Context) error {
	contexts, err := k.repo.Contexts(ctx)
	if err != nil {
		return err
	}
	for _, c := range contexts {
		key, err := k.repo.ActiveByContext(ctx, c)
		if errors.Is(err, repository.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if k.now().Sub(key.CreatedAt) >= k.rotationInterval {
			if _, err := k.Rotate(ctx, c); err != nil {
				return fmt.Errorf("rotate context %q: %w", c, err)
			}
		}
	}
	return nil
}

func (k *Keyring) store(keyContext string, key *domain.EncryptionKey) {
	k.mu.Lock()
	k.active[keyContext] = cachedKey{key: key, fetched: k.now()}
	k.cacheByID(key)
	k.mu.Unlock()
}

// cacheByID must be called with mu held. When the cache is full it is dropped
// wholesale; misses reload from the repository, so no key becomes
// unreachable.
func (k *Keyring) cacheByID(key *domain.EncryptionKey) {
	if len(k.byID) >= k.byIDCap {
		k.byID = make(map[string]*domain.EncryptionKey, k.byIDCap)
	}
	k.byID[key.ID] = key
}

// deriveMACKey derives an independent MAC key from the AEAD key so the
// integrity tag is not computed with the encryption key itself.
func deriveMACKey(key *domain.EncryptionKey) ([]byte, error) {
	r := hkdf.New(sha256.New, key.Material, nil, []byte("mac:"+key.Context))
	out := make([]byte, keyMaterialLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive mac key: %w", err)
	}
	return out, nil
}
