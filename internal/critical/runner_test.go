package critical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"
	"github.com/securekit/secure-session-service/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRunnerForTest(t *testing.T) (*Runner, *gorm.DB) {
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
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor := observability.NewAuditLogger(log, repository.NewAuditRepository(db))
	return NewRunner(db, log, auditor), db
}

func TestExecuteCommitsOnSuccess(t *testing.T) {
	r, db := newRunnerForTest(t)

	op := Operation{Name: "user_create"}
	result, err := r.Execute(context.Background(), op, domain.SecurityContext{}, func(tx *gorm.DB) (any, error) {
		u := &domain.User{Username: "committed", PasswordHash: "h", Active: true}
		if err := tx.Create(u).Error; err != nil {
			return nil, err
		}
		return u, nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.(*domain.User).ID == 0 {
		t.Fatal("expected persisted user in result")
	}

	var count int64
	if err := db.Model(&domain.User{}).Where("username = ?", "committed").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected committed row, got %d", count)
	}
}

func TestExecuteRollsBackOnError(t *testing.T) {
	r, db := newRunnerForTest(t)

	op := Operation{Name: "user_create"}
	_, err := r.Execute(context.Background(), op, domain.SecurityContext{}, func(tx *gorm.DB) (any, error) {
		if err := tx.Create(&domain.User{Username: "doomed", PasswordHash: "h"}).Error; err != nil {
			return nil, err
		}
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var count int64
	if err := db.Model(&domain.User{}).Where("username = ?", "doomed").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestExecuteRollsBackOnResultValidation(t *testing.T) {
	r, db := newRunnerForTest(t)

	op := Operation{
		Name: "user_create",
		ValidateResult: func(v any) error {
			return errors.New("result shape wrong")
		},
	}
	_, err := r.Execute(context.Background(), op, domain.SecurityContext{}, func(tx *gorm.DB) (any, error) {
		return nil, tx.Create(&domain.User{Username: "invalid-result", PasswordHash: "h"}).Error
	})
	if !errors.Is(err, ErrResultValidation) {
		t.Fatalf("expected ErrResultValidation, got %v", err)
	}

	var count int64
	if err := db.Model(&domain.User{}).Where("username = ?", "invalid-result").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("result validation failure must roll back, found %d rows", count)
	}
}

func TestExecutePreconditions(t *testing.T) {
	r, _ := newRunnerForTest(t)
	ctx := context.Background()
	noop := func(tx *gorm.DB) (any, error) { return nil, nil }

	if _, err := r.Execute(ctx, Operation{}, domain.SecurityContext{}, noop); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("missing name: expected ErrInvalidOperation, got %v", err)
	}
	if _, err := r.Execute(ctx, Operation{Name: "x"}, domain.SecurityContext{}, nil); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("missing fn: expected ErrInvalidOperation, got %v", err)
	}
}

func TestExecutePermissionGate(t *testing.T) {
	r, _ := newRunnerForTest(t)
	ctx := context.Background()
	op := Operation{Name: "key_rotate", RequiredPermission: "keys:rotate"}
	noop := func(tx *gorm.DB) (any, error) { return nil, nil }

	if _, err := r.Execute(ctx, op, domain.SecurityContext{}, noop); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	granted := domain.SecurityContext{Permissions: []string{"keys:rotate"}}
	if _, err := r.Execute(ctx, op, granted, noop); err != nil {
		t.Fatalf("granted permission should pass, got %v", err)
	}
}
