package domain

import "time"

type AuditRecord struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Event     string            `gorm:"size:128;index;not null" json:"event"`
	Severity  string            `gorm:"size:16;index;not null" json:"severity"`
	Actor     string            `gorm:"size:128" json:"actor"`
	IP        string            `gorm:"size:64" json:"ip"`
	Detail    map[string]string `gorm:"serializer:json" json:"detail,omitempty"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
