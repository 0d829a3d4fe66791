package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/health"
	"github.com/securekit/secure-session-service/internal/http/handler"
	"github.com/securekit/secure-session-service/internal/security"
	"github.com/securekit/secure-session-service/internal/service"
)

type denyAllValidator struct{}

func (denyAllValidator) ValidateToken(context.Context, string) (*security.Claims, *domain.User, error) {
	return nil, nil, service.ErrInvalidToken
}

func newTestRouter(readiness *health.ProbeRunner) http.Handler {
	return NewRouter(Dependencies{
		AuthHandler:      handler.NewAuthHandler(nil, 15*time.Minute),
		SessionHandler:   handler.NewSessionHandler(nil, nil),
		AdminHandler:     handler.NewAdminHandler(nil, nil),
		TokenValidator:   denyAllValidator{},
		AuthRateLimitRPM: 100,
		APIRateLimitRPM:  100,
		Readiness:        readiness,
	})
}

func TestLivenessEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Data.Status)
	}
}

func TestReadinessWithoutProbes(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadinessUnhealthyDependency(t *testing.T) {
	runner := health.NewProbeRunner(time.Second, health.Check{
		Name:  "redis",
		Probe: func(context.Context) error { return context.DeadlineExceeded },
	})

	rr := httptest.NewRecorder()
	newTestRouter(runner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
