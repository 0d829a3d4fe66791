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

var ErrTokenNotFound = errors.New("session token not found")

type TokenRepository interface {
	Create(ctx context.Context, t *domain.SessionToken) error
	FindByHash(ctx context.Context, hash string) (*domain.SessionToken, error)
	Rotate(ctx context.Context, oldHash string, successor *domain.SessionToken) (*domain.SessionToken, error)
	MarkReuseDetectedByHash(ctx context.Context, hash string) error
	RevokeByFamilyID(ctx context.Context, familyID, reason string) (int64, error)
	RevokeBySessionID(ctx context.Context, sessionID, reason string) (int64, error)
	RevokeByUserID(ctx context.Context, userID uint, reason string) error
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormTokenRepository struct{ db *gorm.DB }

func NewTokenRepository(db *gorm.DB) TokenRepository { return &GormTokenRepository{db: db} }

func (r *GormTokenRepository) Create(ctx context.Context, t *domain.SessionToken) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "create", "success")
	return nil
}

func (r *GormTokenRepository) FindByHash(ctx context.Context, hash string) (*domain.SessionToken, error) {
	var t domain.SessionToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session_token", "find_by_hash", "not_found")
			return nil, ErrTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session_token", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "find_by_hash", "success")
	return &t, nil
}

// Rotate revokes the current token row and creates its successor inside one
// transaction, holding a row lock so two concurrent refreshes with the same
// token cannot both succeed.
func (r *GormTokenRepository) Rotate(ctx context.Context, oldHash string, successor *domain.SessionToken) (*domain.SessionToken, error) {
	var rotated *domain.SessionToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.SessionToken
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ? AND revoked_at IS NULL AND expires_at > ?", oldHash, time.Now()).
			First(&t).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return err
		}
		now := time.Now().UTC()
		reason := "rotated"
		if err := tx.Model(&domain.SessionToken{}).
			Where("id = ?", t.ID).
			Updates(map[string]any{"revoked_at": now, "revoked_reason": reason}).Error; err != nil {
			return err
		}
		if err := tx.Create(successor).Error; err != nil {
			return err
		}
		t.RevokedAt = &now
		t.RevokedReason = &reason
		rotated = &t
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			observability.RecordRepositoryOperation(ctx, "session_token", "rotate", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "session_token", "rotate", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "rotate", "success")
	return rotated, nil
}

func (r *GormTokenRepository) MarkReuseDetectedByHash(ctx context.Context, hash string) error {
	now := time.Now().UTC()
	reason := "reuse_detected"
	err := r.db.WithContext(ctx).Model(&domain.SessionToken{}).
		Where("token_hash = ?", hash).
		Updates(map[string]any{"reuse_detected_at": now, "revoked_reason": reason}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "mark_reuse_detected", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "mark_reuse_detected", "success")
	return nil
}

func (r *GormTokenRepository) RevokeByFamilyID(ctx context.Context, familyID, reason string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.SessionToken{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "revoke_by_family_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "revoke_by_family_id", "success")
	return res.RowsAffected, nil
}

func (r *GormTokenRepository) RevokeBySessionID(ctx context.Context, sessionID, reason string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.SessionToken{}).
		Where("session_id = ? AND revoked_at IS NULL", sessionID).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "revoke_by_session_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "revoke_by_session_id", "success")
	return res.RowsAffected, nil
}

func (r *GormTokenRepository) RevokeByUserID(ctx context.Context, userID uint, reason string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&domain.SessionToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "revoke_by_user_id", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "revoke_by_user_id", "success")
	return nil
}

func (r *GormTokenRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.SessionToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
