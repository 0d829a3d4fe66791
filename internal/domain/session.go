package domain

import "time"

// Session lifecycle: created -> active -> (terminated | expired). Terminal
// states delete the record; there is no transition back to active.
type Session struct {
	ID             string            `gorm:"primaryKey;size:64" json:"id"`
	UserID         uint              `gorm:"index;not null" json:"user_id"`
	TokenHash      string            `gorm:"size:128;uniqueIndex;not null" json:"-"`
	EncryptedToken string            `gorm:"size:4096" json:"-"`
	IP             string            `gorm:"size:64" json:"ip"`
	UserAgent      string            `gorm:"size:512" json:"user_agent"`
	SecurityLevel  string            `gorm:"size:32" json:"security_level"`
	Metadata       map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	ExpiresAt      time.Time         `gorm:"index;not null" json:"expires_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	AccessCount    int64             `json:"access_count"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionToken is the server-side record backing a refresh token. Rotation
// revokes the old row and creates a successor linked through FamilyID, so a
// replayed predecessor is distinguishable from a token that never existed.
type SessionToken struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	SessionID       string     `gorm:"size:64;index" json:"session_id"`
	UserID          uint       `gorm:"index;not null" json:"user_id"`
	TokenHash       string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	TokenID         *string    `gorm:"size:64;uniqueIndex" json:"-"`
	FamilyID        *string    `gorm:"size:64;index" json:"-"`
	ParentTokenID   *string    `gorm:"size:64;index" json:"-"`
	ExpiresAt       time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt       *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason   *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	ReuseDetectedAt *time.Time `gorm:"index" json:"reuse_detected_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Termination reasons recorded in the audit trail.
const (
	TerminationIntegrityViolation = "integrity_violation"
	TerminationExpired            = "expired"
	TerminationAnomalyDetected    = "anomaly_detected"
	TerminationLogout             = "logout"
	TerminationMirrorFailure      = "mirror_failure"
)
