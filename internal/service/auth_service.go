package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"
	"github.com/securekit/secure-session-service/internal/repository"
	"github.com/securekit/secure-session-service/internal/security"
)

type AuthResult struct {
	User         *domain.User
	Session      *domain.Session
	SessionToken string
	AccessToken  string
	RefreshToken string
}

// AuthService verifies credentials and hands out token pairs. The lockout
// check runs before any password hashing both to keep locked accounts cheap
// to reject and to make the lockout observable as its own failure mode.
type AuthService struct {
	users     repository.UserRepository
	sessions  *SessionService
	tokens    *TokenService
	jwtMgr    *security.JWTManager
	lockout   LockoutStore
	blacklist TokenBlacklist
	auditor   *observability.AuditLogger

	maxAttempts   int
	lockoutWindow time.Duration
	now           func() time.Time
}

type AuthServiceParams struct {
	Users         repository.UserRepository
	Sessions      *SessionService
	Tokens        *TokenService
	JWTManager    *security.JWTManager
	Lockout       LockoutStore
	Blacklist     TokenBlacklist
	Auditor       *observability.AuditLogger
	MaxAttempts   int
	LockoutWindow time.Duration
}

func NewAuthService(p AuthServiceParams) *AuthService {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.LockoutWindow <= 0 {
		p.LockoutWindow = 15 * time.Minute
	}
	return &AuthService{
		users:         p.Users,
		sessions:      p.Sessions,
		tokens:        p.Tokens,
		jwtMgr:        p.JWTManager,
		lockout:       p.Lockout,
		blacklist:     p.Blacklist,
		auditor:       p.Auditor,
		maxAttempts:   p.MaxAttempts,
		lockoutWindow: p.LockoutWindow,
		now:           time.Now,
	}
}

func (s *AuthService) Authenticate(ctx context.Context, username, password string, sc domain.SecurityContext) (*AuthResult, error) {
	failures, err := s.lockout.Failures(ctx, username)
	if err != nil {
		return nil, err
	}
	if failures >= int64(s.maxAttempts) {
		observability.RecordAuthLogin(ctx, "locked")
		s.auditor.Warning(ctx, "login_rejected_locked", sc, map[string]string{
			"username": observability.MaskIdentifier(username),
		})
		return nil, ErrAccountLocked
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// burn comparable hashing work so timing does not reveal whether
			// the account exists
			security.DummyVerify(password)
			return nil, s.registerFailure(ctx, username, sc)
		}
		return nil, err
	}

	match, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !match || !user.Active {
		return nil, s.registerFailure(ctx, username, sc)
	}

	if err := s.lockout.Reset(ctx, username); err != nil {
		return nil, err
	}

	sc.UserID = user.ID
	sc.Username = user.Username
	sc.Permissions = user.Permissions
	session, sessionToken, err := s.sessions.CreateSession(ctx, sc)
	if err != nil {
		observability.RecordAuthLogin(ctx, "error")
		return nil, err
	}
	access, refresh, err := s.tokens.Issue(ctx, user, session.ID)
	if err != nil {
		observability.RecordAuthLogin(ctx, "error")
		s.sessions.TerminateSession(ctx, session.ID, domain.TerminationLogout)
		return nil, err
	}

	observability.RecordAuthLogin(ctx, "success")
	s.auditor.Event(ctx, "login", sc, map[string]string{
		"session_id": session.ID,
	})
	return &AuthResult{
		User:         user,
		Session:      session,
		SessionToken: sessionToken,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// ValidateToken checks signature and expiry first, then the blacklist
// (explicit revocation beats a structurally valid token), then that the
// subject is still active.
func (s *AuthService) ValidateToken(ctx context.Context, raw string) (*security.Claims, *domain.User, error) {
	claims, err := s.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		observability.RecordTokenValidation(ctx, "invalid", "access")
		return nil, nil, ErrInvalidToken
	}
	revoked, err := s.blacklist.Contains(ctx, security.HashToken(raw))
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		observability.RecordTokenValidation(ctx, "blacklisted", "access")
		return nil, nil, ErrTokenBlacklisted
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		observability.RecordTokenValidation(ctx, "invalid", "access")
		return nil, nil, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, uint(userID))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordTokenValidation(ctx, "invalid", "access")
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !user.Active {
		observability.RecordTokenValidation(ctx, "inactive_subject", "access")
		return nil, nil, ErrSubjectInactive
	}
	observability.RecordTokenValidation(ctx, "valid", "access")
	return claims, user, nil
}

// Refresh exchanges a refresh token for a new pair. Refresh tokens are
// single use; replaying one revokes its whole family.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, sc domain.SecurityContext) (*AuthResult, error) {
	access, newRefresh, userID, sessionID, err := s.tokens.Rotate(ctx, refreshToken, func(ctx context.Context, id uint) (*domain.User, error) {
		user, err := s.users.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !user.Active {
			return nil, ErrSubjectInactive
		}
		return user, nil
	})
	if err != nil {
		if errors.Is(err, ErrRefreshTokenReuseDetected) {
			observability.RecordAuthRefresh(ctx, "reuse_detected")
			s.auditor.Critical(ctx, "refresh_token_reuse", sc, nil)
		} else {
			observability.RecordAuthRefresh(ctx, "failure")
		}
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthRefresh(ctx, "success")
	s.auditor.Event(ctx, "token_refresh", sc, map[string]string{
		"session_id": sessionID,
	})
	return &AuthResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: newRefresh,
	}, nil
}

// Logout blacklists the access token until its natural expiry, revokes every
// refresh token for the subject, and terminates the presenting session.
func (s *AuthService) Logout(ctx context.Context, accessToken string, sc domain.SecurityContext) error {
	claims, err := s.jwtMgr.ParseAccessToken(accessToken)
	if err != nil {
		observability.RecordAuthLogout(ctx, "failure")
		return ErrInvalidToken
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		observability.RecordAuthLogout(ctx, "failure")
		return ErrInvalidToken
	}
	until := s.now().Add(s.tokens.AccessTTL())
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.blacklist.Add(ctx, security.HashToken(accessToken), until); err != nil {
		observability.RecordAuthLogout(ctx, "error")
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, uint(userID), "logout"); err != nil {
		observability.RecordAuthLogout(ctx, "error")
		return err
	}
	if claims.SessionID != "" {
		s.sessions.TerminateSession(ctx, claims.SessionID, domain.TerminationLogout)
	}
	observability.RecordAuthLogout(ctx, "success")
	s.auditor.Event(ctx, "logout", sc, map[string]string{
		"session_id": claims.SessionID,
	})
	return nil
}

func (s *AuthService) registerFailure(ctx context.Context, username string, sc domain.SecurityContext) error {
	count, err := s.lockout.RegisterFailure(ctx, username, s.lockoutWindow)
	if err != nil {
		return err
	}
	observability.RecordAuthLogin(ctx, "failure")
	detail := map[string]string{
		"username": observability.MaskIdentifier(username),
	}
	if count >= int64(s.maxAttempts) {
		s.auditor.Warning(ctx, "account_lockout_triggered", sc, detail)
	} else {
		s.auditor.Event(ctx, "login_failed", sc, detail)
	}
	return ErrInvalidCredentials
}
