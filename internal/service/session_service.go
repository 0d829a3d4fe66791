package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/securekit/secure-session-service/internal/critical"
	"github.com/securekit/secure-session-service/internal/crypto"
	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"
	"github.com/securekit/secure-session-service/internal/repository"
	"github.com/securekit/secure-session-service/internal/security"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionService owns the session lifecycle. The durable store is the source
// of truth; the redis mirror is a read accelerator kept consistent by
// compensating termination when a mirror write fails after commit.
type SessionService struct {
	sessions  repository.SessionRepository
	cache     SessionCacheStore
	encryptor *crypto.Encryptor
	runner    *critical.Runner
	auditor   *observability.AuditLogger
	scorer    *AnomalyScorer
	tokens    *TokenService
	logger    *slog.Logger

	ttl           time.Duration
	allowIPChange bool
	now           func() time.Time
}

type SessionServiceParams struct {
	Sessions      repository.SessionRepository
	Cache         SessionCacheStore
	Encryptor     *crypto.Encryptor
	Runner        *critical.Runner
	Auditor       *observability.AuditLogger
	Scorer        *AnomalyScorer
	Tokens        *TokenService
	Logger        *slog.Logger
	TTL           time.Duration
	AllowIPChange bool
}

func NewSessionService(p SessionServiceParams) *SessionService {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.TTL <= 0 {
		p.TTL = 24 * time.Hour
	}
	return &SessionService{
		sessions:      p.Sessions,
		cache:         p.Cache,
		encryptor:     p.Encryptor,
		runner:        p.Runner,
		auditor:       p.Auditor,
		scorer:        p.Scorer,
		tokens:        p.Tokens,
		logger:        p.Logger,
		ttl:           p.TTL,
		allowIPChange: p.AllowIPChange,
		now:           time.Now,
	}
}

// CreateSession persists a new session transactionally and mirrors it to the
// cache. Only the SHA-256 of the session token is stored; the raw token goes
// back to the caller once and is otherwise held only inside the encrypted
// mirror payload.
func (s *SessionService) CreateSession(ctx context.Context, sc domain.SecurityContext) (*domain.Session, string, error) {
	token, err := security.GenerateToken(32)
	if err != nil {
		observability.RecordSessionOperation(ctx, "create", "failure", "")
		return nil, "", err
	}
	payload, err := s.encryptor.Encrypt(ctx, []byte(token), domain.ContextSessionCache)
	if err != nil {
		observability.RecordSessionOperation(ctx, "create", "failure", "")
		return nil, "", fmt.Errorf("encrypt session token: %w", err)
	}
	encoded, err := payload.Encode()
	if err != nil {
		observability.RecordSessionOperation(ctx, "create", "failure", "")
		return nil, "", err
	}

	level := sc.SecurityLevel
	if level == "" {
		level = "standard"
	}
	nowUTC := s.now().UTC()
	sess := &domain.Session{
		ID:             uuid.NewString(),
		UserID:         sc.UserID,
		TokenHash:      security.HashToken(token),
		EncryptedToken: encoded,
		IP:             sc.IP,
		UserAgent:      sc.UserAgent,
		SecurityLevel:  level,
		Metadata:       sc.Metadata,
		ExpiresAt:      nowUTC.Add(s.ttl),
		LastActivityAt: nowUTC,
	}

	op := critical.Operation{
		Name: "session_create",
		ValidateResult: func(v any) error {
			created, ok := v.(*domain.Session)
			if !ok || created == nil || created.ID == "" {
				return errors.New("session record incomplete")
			}
			return nil
		},
	}
	if _, err := s.runner.Execute(ctx, op, sc, func(tx *gorm.DB) (any, error) {
		if err := s.sessions.CreateTx(tx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}); err != nil {
		observability.RecordSessionOperation(ctx, "create", "failure", "")
		return nil, "", err
	}

	if err := s.cache.Put(ctx, sess, s.ttl); err != nil {
		// the record committed but the mirror did not; tear the session down
		// so it is not visible in one store only
		s.logger.ErrorContext(ctx, "session mirror write failed, compensating", "session_id", sess.ID, "error", err)
		s.TerminateSession(ctx, sess.ID, domain.TerminationMirrorFailure)
		observability.RecordSessionOperation(ctx, "create", "failure", "")
		return nil, "", fmt.Errorf("mirror session: %w", err)
	}

	observability.RecordSessionOperation(ctx, "create", "success", "")
	s.auditor.Event(ctx, "session_created", sc, map[string]string{
		"session_id":     sess.ID,
		"security_level": sess.SecurityLevel,
	})
	return sess, token, nil
}

// ValidateSession runs the integrity, expiry and anomaly gates in order. The
// first failing gate terminates the session before returning false.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string, sc domain.SecurityContext) (bool, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordSessionOperation(ctx, "validate", "failure", "not_found")
			return false, nil
		}
		observability.RecordSessionOperation(ctx, "validate", "error", "")
		return false, err
	}

	if reason, ok := s.checkIntegrity(sess, sc); !ok {
		s.TerminateSession(ctx, sessionID, domain.TerminationIntegrityViolation)
		observability.RecordSessionOperation(ctx, "validate", "failure", domain.TerminationIntegrityViolation)
		s.auditor.Critical(ctx, "session_integrity_violation", sc, map[string]string{
			"session_id": sessionID,
			"mismatch":   reason,
		})
		return false, nil
	}

	if sess.Expired(s.now()) {
		s.TerminateSession(ctx, sessionID, domain.TerminationExpired)
		observability.RecordSessionOperation(ctx, "validate", "failure", domain.TerminationExpired)
		return false, nil
	}

	if s.scorer != nil {
		score, fired, terminate := s.scorer.Score(ctx, sess, sc)
		observability.RecordAnomalyScore(ctx, score)
		if terminate {
			s.TerminateSession(ctx, sessionID, domain.TerminationAnomalyDetected)
			observability.RecordSessionOperation(ctx, "validate", "failure", domain.TerminationAnomalyDetected)
			s.auditor.Critical(ctx, "session_anomaly_detected", sc, map[string]string{
				"session_id": sessionID,
				"score":      fmt.Sprintf("%d", score),
				"checks":     fmt.Sprintf("%v", fired),
			})
			return false, nil
		}
	}

	nowUTC := s.now().UTC()
	if err := s.sessions.Touch(ctx, sessionID, nowUTC); err != nil {
		observability.RecordSessionOperation(ctx, "validate", "error", "")
		return false, err
	}
	sess.LastActivityAt = nowUTC
	sess.AccessCount++
	if remaining := sess.ExpiresAt.Sub(s.now()); remaining > 0 {
		if err := s.cache.Put(ctx, sess, remaining); err != nil {
			s.logger.WarnContext(ctx, "session mirror refresh failed", "session_id", sessionID, "error", err)
		}
	}

	observability.RecordSessionOperation(ctx, "validate", "success", "")
	return true, nil
}

// TerminateSession is best effort: it removes the durable record, drops the
// mirror, and revokes the session's refresh tokens. Failures are logged and
// audited, never returned, so termination cannot fail the request path that
// triggered it.
func (s *SessionService) TerminateSession(ctx context.Context, sessionID, reason string) {
	sc := domain.SecurityContext{}
	op := critical.Operation{Name: "session_terminate"}
	if _, err := s.runner.Execute(ctx, op, sc, func(tx *gorm.DB) (any, error) {
		return nil, s.sessions.DeleteTx(tx, sessionID)
	}); err != nil {
		s.logger.ErrorContext(ctx, "session termination store delete failed", "session_id", sessionID, "error", err)
	}
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "session termination mirror delete failed", "session_id", sessionID, "error", err)
	}
	if s.tokens != nil {
		if _, err := s.tokens.RevokeForSession(ctx, sessionID, reason); err != nil {
			s.logger.ErrorContext(ctx, "session termination token revocation failed", "session_id", sessionID, "error", err)
		}
	}
	observability.RecordSessionOperation(ctx, "terminate", "success", reason)
	s.auditor.Event(ctx, "session_terminated", sc, map[string]string{
		"session_id": sessionID,
		"reason":     reason,
	})
}

// FindSession reads the durable record, bypassing the mirror. Callers that
// act on ownership checks need the source of truth, not a cached view.
func (s *SessionService) FindSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.FindByID(ctx, sessionID)
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID uint) ([]domain.Session, error) {
	return s.sessions.ListActiveByUserID(ctx, userID)
}

func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessions.CleanupExpired(ctx, s.now())
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, ok, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "session mirror read failed, falling back to store", "session_id", sessionID, "error", err)
	}
	if ok && err == nil {
		return sess, nil
	}
	return s.sessions.FindByID(ctx, sessionID)
}

func (s *SessionService) checkIntegrity(sess *domain.Session, sc domain.SecurityContext) (string, bool) {
	if sess.UserID != sc.UserID {
		return "user_id", false
	}
	if sess.UserAgent != sc.UserAgent {
		return "user_agent", false
	}
	if sess.IP != sc.IP && !s.allowIPChange {
		return "ip", false
	}
	return "", true
}
