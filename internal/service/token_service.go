package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/repository"
	"github.com/securekit/secure-session-service/internal/security"
)

// TokenService mints access/refresh pairs and enforces single-use refresh
// rotation. A rotated-out refresh token that comes back is treated as reuse
// and revokes the whole token family.
type TokenService struct {
	jwtMgr     *security.JWTManager
	tokens     repository.TokenRepository
	pepper     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(jwtMgr *security.JWTManager, tokens repository.TokenRepository, pepper string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		jwtMgr:     jwtMgr,
		tokens:     tokens,
		pepper:     pepper,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (s *TokenService) Issue(ctx context.Context, user *domain.User, sessionID string) (access string, refresh string, err error) {
	access, refresh, refreshClaims, err := s.mintPair(user, sessionID)
	if err != nil {
		return "", "", err
	}
	jti := refreshClaims.ID
	if err := s.tokens.Create(ctx, &domain.SessionToken{
		SessionID: sessionID,
		UserID:    user.ID,
		TokenHash: security.HashRefreshToken(refresh, s.pepper),
		TokenID:   ptr(jti),
		FamilyID:  ptr(jti),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Rotate exchanges a refresh token for a fresh pair and invalidates the old
// token. The old row is revoked with reason "rotated" rather than deleted so
// a replay is recognizable as reuse.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string, fetchUser func(ctx context.Context, id uint) (*domain.User, error)) (access string, newRefresh string, userID uint, sessionID string, err error) {
	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return "", "", 0, "", ErrInvalidRefreshToken
	}
	hash := security.HashRefreshToken(refreshToken, s.pepper)
	record, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", "", 0, "", ErrInvalidRefreshToken
		}
		return "", "", 0, "", err
	}
	id64, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return "", "", 0, "", ErrInvalidRefreshToken
	}
	userID = uint(id64)
	if record.UserID != userID {
		return "", "", 0, "", ErrInvalidRefreshToken
	}
	tokenID := getString(record.TokenID)
	if tokenID != "" && claims.ID != "" && tokenID != claims.ID {
		return "", "", 0, "", ErrInvalidRefreshToken
	}
	if record.ExpiresAt.Before(s.now()) {
		return "", "", 0, "", ErrInvalidRefreshToken
	}
	if record.RevokedAt != nil {
		reason := getString(record.RevokedReason)
		if reason == "" || reason == "rotated" || reason == "reuse_detected" {
			_ = s.tokens.MarkReuseDetectedByHash(ctx, hash)
			if familyID := getString(record.FamilyID); familyID != "" {
				_, _ = s.tokens.RevokeByFamilyID(ctx, familyID, "reuse_detected")
			}
			return "", "", 0, "", ErrRefreshTokenReuseDetected
		}
		return "", "", 0, "", ErrInvalidRefreshToken
	}

	user, err := fetchUser(ctx, userID)
	if err != nil {
		return "", "", 0, "", err
	}
	sessionID = record.SessionID
	access, newRefresh, newClaims, err := s.mintPair(user, sessionID)
	if err != nil {
		return "", "", 0, "", err
	}
	_, err = s.tokens.Rotate(ctx, hash, &domain.SessionToken{
		SessionID:     sessionID,
		UserID:        userID,
		TokenHash:     security.HashRefreshToken(newRefresh, s.pepper),
		TokenID:       ptr(newClaims.ID),
		FamilyID:      record.FamilyID,
		ParentTokenID: ptr(tokenID),
		ExpiresAt:     s.now().Add(s.refreshTTL),
	})
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", "", 0, "", ErrInvalidRefreshToken
		}
		return "", "", 0, "", err
	}
	return access, newRefresh, userID, sessionID, nil
}

func (s *TokenService) RevokeAllForUser(ctx context.Context, userID uint, reason string) error {
	return s.tokens.RevokeByUserID(ctx, userID, reason)
}

func (s *TokenService) RevokeForSession(ctx context.Context, sessionID, reason string) (int64, error) {
	return s.tokens.RevokeBySessionID(ctx, sessionID, reason)
}

func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenService) mintPair(user *domain.User, sessionID string) (access string, refresh string, refreshClaims *security.Claims, err error) {
	refresh, err = s.jwtMgr.SignRefreshToken(user.ID, sessionID, s.refreshTTL)
	if err != nil {
		return "", "", nil, err
	}
	refreshClaims, err = s.jwtMgr.ParseRefreshToken(refresh)
	if err != nil {
		return "", "", nil, err
	}
	access, err = s.jwtMgr.SignAccessTokenWithJTI(user.ID, sessionID, user.Roles, user.Permissions, s.accessTTL, refreshClaims.ID)
	if err != nil {
		return "", "", nil, err
	}
	return access, refresh, refreshClaims, nil
}

func ptr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
