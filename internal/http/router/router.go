package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/securekit/secure-session-service/internal/health"
	"github.com/securekit/secure-session-service/internal/http/handler"
	"github.com/securekit/secure-session-service/internal/http/middleware"
	"github.com/securekit/secure-session-service/internal/http/response"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	SessionHandler   *handler.SessionHandler
	AdminHandler     *handler.AdminHandler
	TokenValidator   middleware.TokenValidator
	AuthRateLimitRPM int
	APIRateLimitRPM  int
	MaxBodyBytes     int64
	Readiness        *health.ProbeRunner
	EnableOTelHTTP   bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	maxBody := dep.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(middleware.BodyLimit(maxBody))
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())

	authLimiter := middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	authn := middleware.AuthMiddleware(dep.TokenValidator)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.With(authn).Post("/logout", dep.AuthHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Get("/me", dep.SessionHandler.Me)
			r.Get("/me/sessions", dep.SessionHandler.List)
			r.Post("/me/sessions/validate", dep.SessionHandler.Validate)
			r.Delete("/me/sessions/{session_id}", dep.SessionHandler.Revoke)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authn)
			r.With(middleware.RequirePermission("keys:rotate")).Post("/keys/rotate", dep.AdminHandler.RotateKeys)
			r.With(middleware.RequirePermission("audit:read")).Get("/audit", dep.AdminHandler.AuditTrail)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
