package repository

import (
	"context"
	"errors"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrKeyNotFound = errors.New("encryption key not found")

type KeyRepository interface {
	FindByID(ctx context.Context, id string) (*domain.EncryptionKey, error)
	ActiveByContext(ctx context.Context, keyContext string) (*domain.EncryptionKey, error)
	// Rotate retires the currently active key for the new key's context (if
	// any) and inserts the new key as active, in one transaction. Retired
	// keys are never deleted here.
	Rotate(ctx context.Context, newKey *domain.EncryptionKey) (previousID string, err error)
	Contexts(ctx context.Context) ([]string, error)
}

type GormKeyRepository struct{ db *gorm.DB }

func NewKeyRepository(db *gorm.DB) KeyRepository { return &GormKeyRepository{db: db} }

func (r *GormKeyRepository) FindByID(ctx context.Context, id string) (*domain.EncryptionKey, error) {
	var k domain.EncryptionKey
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&k).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "encryption_key", "find_by_id", "not_found")
			return nil, ErrKeyNotFound
		}
		observability.RecordRepositoryOperation(ctx, "encryption_key", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "encryption_key", "find_by_id", "success")
	return &k, nil
}

func (r *GormKeyRepository) ActiveByContext(ctx context.Context, keyContext string) (*domain.EncryptionKey, error) {
	var k domain.EncryptionKey
	err := r.db.WithContext(ctx).Where("context = ? AND active = ?", keyContext, true).First(&k).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "encryption_key", "active_by_context", "not_found")
			return nil, ErrKeyNotFound
		}
		observability.RecordRepositoryOperation(ctx, "encryption_key", "active_by_context", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "encryption_key", "active_by_context", "success")
	return &k, nil
}

func (r *GormKeyRepository) Rotate(ctx context.Context, newKey *domain.EncryptionKey) (string, error) {
	var previousID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.EncryptionKey
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("context = ? AND active = ?", newKey.Context, true).
			First(&current).Error
		switch {
		case err == nil:
			now := time.Now().UTC()
			if err := tx.Model(&domain.EncryptionKey{}).
				Where("id = ?", current.ID).
				Updates(map[string]any{"active": false, "retired_at": now}).Error; err != nil {
				return err
			}
			previousID = current.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first key for this context
		default:
			return err
		}
		newKey.Active = true
		return tx.Create(newKey).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "encryption_key", "rotate", "error")
		return "", err
	}
	observability.RecordRepositoryOperation(ctx, "encryption_key", "rotate", "success")
	return previousID, nil
}

func (r *GormKeyRepository) Contexts(ctx context.Context) ([]string, error) {
	var contexts []string
	err := r.db.WithContext(ctx).Model(&domain.EncryptionKey{}).
		Distinct("context").
		Pluck("context", &contexts).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "encryption_key", "contexts", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "encryption_key", "contexts", "success")
	return contexts, nil
}
