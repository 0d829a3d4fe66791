package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/securekit/secure-session-service/internal/domain"
)

func TestKeyRepositoryRotateKeepsOneActivePerContext(t *testing.T) {
	db := newTestDB(t)
	repo := NewKeyRepository(db)
	ctx := context.Background()

	first := &domain.EncryptionKey{ID: "key-1", Context: "default", Material: []byte("material-1")}
	previous, err := repo.Rotate(ctx, first)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if previous != "" {
		t.Fatalf("expected no predecessor for first key, got %q", previous)
	}

	second := &domain.EncryptionKey{ID: "key-2", Context: "default", Material: []byte("material-2")}
	previous, err = repo.Rotate(ctx, second)
	if err != nil {
		t.Fatalf("second rotate: %v", err)
	}
	if previous != "key-1" {
		t.Fatalf("expected key-1 retired, got %q", previous)
	}

	active, err := repo.ActiveByContext(ctx, "default")
	if err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if active.ID != "key-2" {
		t.Fatalf("expected key-2 active, got %s", active.ID)
	}

	var count int64
	if err := db.Model(&domain.EncryptionKey{}).
		Where("context = ? AND active = ?", "default", true).
		Count(&count).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 active key, got %d", count)
	}

	retired, err := repo.FindByID(ctx, "key-1")
	if err != nil {
		t.Fatalf("retired key must stay readable: %v", err)
	}
	if retired.Active || retired.RetiredAt == nil {
		t.Fatalf("retired key state wrong: %+v", retired)
	}
}

func TestKeyRepositoryActiveByContextMissing(t *testing.T) {
	repo := NewKeyRepository(newTestDB(t))

	_, err := repo.ActiveByContext(context.Background(), "never-rotated")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestKeyRepositoryContexts(t *testing.T) {
	repo := NewKeyRepository(newTestDB(t))
	ctx := context.Background()

	for _, k := range []*domain.EncryptionKey{
		{ID: "c1", Context: "default", Material: []byte("m1")},
		{ID: "c2", Context: "session-cache", Material: []byte("m2")},
		{ID: "c3", Context: "default", Material: []byte("m3")},
	} {
		if _, err := repo.Rotate(ctx, k); err != nil {
			t.Fatalf("rotate %s: %v", k.ID, err)
		}
	}

	contexts, err := repo.Contexts(ctx)
	if err != nil {
		t.Fatalf("contexts: %v", err)
	}
	if len(contexts) != 2 {
		t.Fatalf("expected 2 distinct contexts, got %v", contexts)
	}
}
