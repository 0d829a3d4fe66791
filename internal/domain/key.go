package domain

import "time"

// EncryptionKey rows form an append-only history per context. Exactly one row
// per context is active; rotation retires the predecessor but never deletes
// it, so payloads encrypted before rotation stay decryptable.
type EncryptionKey struct {
	ID        string     `gorm:"primaryKey;size:64" json:"id"`
	Context   string     `gorm:"size:64;index;not null" json:"context"`
	Material  []byte     `gorm:"not null" json:"-"`
	Active    bool       `gorm:"index" json:"active"`
	RetiredAt *time.Time `gorm:"index" json:"retired_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Well-known encryption contexts.
const (
	ContextDefault      = "default"
	ContextSessionCache = "session-cache"
)
