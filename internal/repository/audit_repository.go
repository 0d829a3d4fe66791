package repository

import (
	"context"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"

	"gorm.io/gorm"
)

type AuditRepository interface {
	Append(ctx context.Context, rec *domain.AuditRecord) error
	RecentByEvent(ctx context.Context, event string, limit int) ([]domain.AuditRecord, error)
}

type GormAuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &GormAuditRepository{db: db} }

func (r *GormAuditRepository) Append(ctx context.Context, rec *domain.AuditRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "audit_log", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "audit_log", "append", "success")
	return nil
}

func (r *GormAuditRepository) RecentByEvent(ctx context.Context, event string, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []domain.AuditRecord
	err := r.db.WithContext(ctx).
		Where("event = ?", event).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "audit_log", "recent_by_event", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "audit_log", "recent_by_event", "success")
	return recs, nil
}
