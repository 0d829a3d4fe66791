package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/securekit/secure-session-service/internal/domain"
)

func TestUserRepositoryCreateAndFind(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	user := &domain.User{
		Username:     "alice",
		PasswordHash: "hash",
		Roles:        []string{"user"},
		Permissions:  []string{"sessions:read"},
		Active:       true,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}

	byName, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find by username: %v", err)
	}
	if byName.ID != user.ID || len(byName.Permissions) != 1 {
		t.Fatalf("unexpected user: %+v", byName)
	}

	byID, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Username != "alice" {
		t.Fatalf("unexpected user: %+v", byID)
	}
}

func TestUserRepositoryFindMissing(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.FindByUsername(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := repo.FindByID(ctx, 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepositorySetActive(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	user := &domain.User{Username: "bob", PasswordHash: "hash", Active: true}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("set inactive: %v", err)
	}
	got, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Active {
		t.Fatal("expected user to be inactive")
	}
}
