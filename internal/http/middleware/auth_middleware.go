package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/http/response"
	"github.com/securekit/secure-session-service/internal/security"
	"github.com/securekit/secure-session-service/internal/service"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
	TokenContextKey  contextKey = "raw_token"
)

// TokenValidator is the slice of AuthService the middleware needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, raw string) (*security.Claims, *domain.User, error)
}

func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			raw := strings.TrimSpace(auth[7:])
			claims, _, err := validator.ValidateToken(r.Context(), raw)
			if err != nil {
				// a blacklisted token gets the same surface response as any
				// other invalid token
				if errors.Is(err, service.ErrInvalidToken) ||
					errors.Is(err, service.ErrTokenBlacklisted) ||
					errors.Is(err, service.ErrSubjectInactive) {
					response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
					return
				}
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, TokenContextKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

func RawTokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(TokenContextKey).(string)
	return t, ok
}
