package repository

import (
	"context"
	"errors"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	CreateTx(tx *gorm.DB, s *domain.Session) error
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uint) ([]domain.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteTx(tx *gorm.DB, id string) error
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	return r.CreateTx(r.db.WithContext(ctx), s)
}

func (r *GormSessionRepository) CreateTx(tx *gorm.DB, s *domain.Session) error {
	err := tx.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, time.Now()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user_id", "success")
	return sessions, nil
}

// Touch bumps activity bookkeeping atomically; the counter increment happens
// in SQL so concurrent validations do not lose updates.
func (r *GormSessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_activity_at": at,
			"access_count":     gorm.Expr("access_count + 1"),
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "touch", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "session", "touch", "not_found")
		return ErrSessionNotFound
	}
	observability.RecordRepositoryOperation(ctx, "session", "touch", "success")
	return nil
}

func (r *GormSessionRepository) Delete(ctx context.Context, id string) error {
	return r.DeleteTx(r.db.WithContext(ctx), id)
}

func (r *GormSessionRepository) DeleteTx(tx *gorm.DB, id string) error {
	err := tx.Where("id = ?", id).Delete(&domain.Session{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete", "success")
	return nil
}

func (r *GormSessionRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
