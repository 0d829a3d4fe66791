package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/security"
	"github.com/securekit/secure-session-service/internal/service"
)

type stubValidator struct {
	claims *security.Claims
	err    error
}

func (s stubValidator) ValidateToken(_ context.Context, _ string) (*security.Claims, *domain.User, error) {
	return s.claims, nil, s.err
}

func TestAuthMiddlewareMissingTokenReturnsUnauthorized(t *testing.T) {
	h := AuthMiddleware(stubValidator{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", rr.Code)
	}
}

func TestAuthMiddlewareValidBearerTokenPasses(t *testing.T) {
	claims := &security.Claims{TokenType: "access", SessionID: "sess-1"}
	var gotClaims *security.Claims
	var gotRaw string
	h := AuthMiddleware(stubValidator{claims: claims})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFromContext(r.Context())
		gotRaw, _ = RawTokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer opaque-token-value")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for valid token, got %d", rr.Code)
	}
	if gotClaims == nil || gotClaims.SessionID != "sess-1" {
		t.Fatalf("claims not propagated: %+v", gotClaims)
	}
	if gotRaw != "opaque-token-value" {
		t.Fatalf("raw token not propagated: %q", gotRaw)
	}
}

func TestAuthMiddlewareUniform401(t *testing.T) {
	for _, err := range []error{
		service.ErrInvalidToken,
		service.ErrTokenBlacklisted,
		service.ErrSubjectInactive,
	} {
		h := AuthMiddleware(stubValidator{err: err})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("Authorization", "Bearer whatever")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%v: expected 401, got %d", err, rr.Code)
		}
	}
}

func TestAuthMiddlewareInternalError(t *testing.T) {
	h := AuthMiddleware(stubValidator{err: errors.New("store down")})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for backend failure, got %d", rr.Code)
	}
}
